package broker_test

import (
	"context"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/relaydev/clauder/internal/ipc"
	"github.com/relaydev/clauder/internal/permission"
)

// countingPrompter answers with a fixed response and counts escalations.
type countingPrompter struct {
	response permission.Response
	calls    atomic.Int64
	gate     chan struct{} // when non-nil, Ask blocks until the gate closes
}

func (p *countingPrompter) Ask(ctx context.Context, _ permission.Ask) (permission.Response, error) {
	p.calls.Add(1)
	if p.gate != nil {
		select {
		case <-p.gate:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return p.response, nil
}

var _ = Describe("Permission brokering", func() {
	var (
		ctx       context.Context
		storePath string
	)

	writeQuery := permission.Query{
		Action: "Write",
		Input:  map[string]any{"file_path": "/srv/app/a.txt"},
	}

	BeforeEach(func() {
		ctx = context.Background()
		storePath = filepath.Join(GinkgoT().TempDir(), "permissions.json")
	})

	It("persists an allow-always decision across sessions with zero re-escalations", func() {
		human := &countingPrompter{response: permission.AllowAlways}
		first := permission.NewBroker("run-1", permission.NewStore(storePath), human, nil, time.Minute)

		dec := first.Query(ctx, writeQuery)
		Expect(dec.Outcome).To(Equal(permission.OutcomeAllow))
		Expect(human.calls.Load()).To(Equal(int64(1)))

		// A brand-new session over the same store file never escalates.
		silent := &countingPrompter{response: permission.Deny}
		second := permission.NewBroker("run-2", permission.NewStore(storePath), silent, nil, time.Minute)

		dec = second.Query(ctx, writeQuery)
		Expect(dec.Outcome).To(Equal(permission.OutcomeAllow))
		Expect(dec.Source).To(Equal(permission.SourceStore))
		Expect(silent.calls.Load()).To(BeZero())
	})

	It("keeps session-scoped grants out of the persistent store", func() {
		store := permission.NewStore(storePath)
		human := &countingPrompter{response: permission.AllowSession}
		broker := permission.NewBroker("run-1", store, human, nil, time.Minute)

		Expect(broker.Query(ctx, writeQuery).Outcome).To(Equal(permission.OutcomeAllow))
		Expect(broker.Query(ctx, writeQuery).Source).To(Equal(permission.SourceSession))
		Expect(human.calls.Load()).To(Equal(int64(1)), "second query hits the session cache")

		records, err := store.All(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(records).To(BeEmpty())

		// A fresh session starts from scratch.
		fresh := permission.NewBroker("run-2", store, human, nil, time.Minute)
		Expect(fresh.Query(ctx, writeQuery).Outcome).To(Equal(permission.OutcomeAllow))
		Expect(human.calls.Load()).To(Equal(int64(2)))
	})

	It("answers queries over the socket independently of a blocked escalation", func() {
		human := &countingPrompter{response: permission.AllowOnce, gate: make(chan struct{})}
		broker := permission.NewBroker("run-1", permission.NewStore(storePath), human, nil, time.Minute)

		listener, err := ipc.NewListener(ctx, broker)
		Expect(err).NotTo(HaveOccurred())
		defer listener.Close()
		listener.Start()

		client := ipc.NewClient(ipc.ClientConfig{SocketPath: listener.Path()})

		// Park one query on the blocked human.
		blocked := make(chan permission.Decision, 1)
		go func() {
			defer GinkgoRecover()
			dec, qerr := client.Query(ctx, writeQuery)
			Expect(qerr).NotTo(HaveOccurred())
			blocked <- dec
		}()
		Eventually(func() int64 { return human.calls.Load() }).Should(Equal(int64(1)))

		// A different fingerprint is decided by a rule while the first
		// query is still waiting on its human.
		rules := []permission.Rule{{Pattern: "Read", Outcome: permission.OutcomeAllow}}
		ruled := permission.NewBroker("run-1", nil, human, rules, time.Minute)
		ruledListener, err := ipc.NewListener(ctx, ruled)
		Expect(err).NotTo(HaveOccurred())
		defer ruledListener.Close()
		ruledListener.Start()

		ruledClient := ipc.NewClient(ipc.ClientConfig{SocketPath: ruledListener.Path()})
		dec, err := ruledClient.Query(ctx, permission.Query{
			Action: "Read",
			Input:  map[string]any{"file_path": "/srv/app/b.txt"},
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(dec.Outcome).To(Equal(permission.OutcomeAllow))
		Expect(blocked).To(BeEmpty(), "the parked query is still pending")

		close(human.gate)
		Eventually(blocked).Should(Receive(WithTransform(
			func(d permission.Decision) permission.Outcome { return d.Outcome },
			Equal(permission.OutcomeAllow),
		)))
	})

	It("coalesces concurrent identical queries into one escalation", func() {
		human := &countingPrompter{response: permission.AllowOnce, gate: make(chan struct{})}
		broker := permission.NewBroker("run-1", permission.NewStore(storePath), human, nil, time.Minute)

		listener, err := ipc.NewListener(ctx, broker)
		Expect(err).NotTo(HaveOccurred())
		defer listener.Close()
		listener.Start()
		client := ipc.NewClient(ipc.ClientConfig{SocketPath: listener.Path()})

		var wg sync.WaitGroup
		outcomes := make(chan permission.Outcome, 2)
		for i := 0; i < 2; i++ {
			wg.Add(1)
			go func() {
				defer GinkgoRecover()
				defer wg.Done()
				dec, qerr := client.Query(ctx, writeQuery)
				Expect(qerr).NotTo(HaveOccurred())
				outcomes <- dec.Outcome
			}()
		}

		Eventually(func() int64 { return human.calls.Load() }).Should(Equal(int64(1)))
		Consistently(func() int64 { return human.calls.Load() }, 300*time.Millisecond).Should(Equal(int64(1)))

		close(human.gate)
		wg.Wait()
		close(outcomes)
		for outcome := range outcomes {
			Expect(outcome).To(Equal(permission.OutcomeAllow))
		}
	})
})
