package broker_test

import (
	"context"
	"os"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/relaydev/clauder/citest/testutil"
	"github.com/relaydev/clauder/internal/executor"
	"github.com/relaydev/clauder/internal/interact"
)

var _ = Describe("Interactive execution", func() {
	var workspace string

	BeforeEach(func() {
		workspace = GinkgoT().TempDir()
	})

	options := func(agentPath string) executor.Options {
		return executor.Options{
			Prompt:            "do the task",
			Workspace:         workspace,
			AgentPath:         agentPath,
			Model:             "sonnet",
			Tier:              "standard",
			SkipPermissions:   true,
			Choices:           true,
			Questions:         true,
			Confirmations:     true,
			ExecutionTimeout:  30 * time.Second,
			InactivityTimeout: 10 * time.Second,
			HeartbeatInterval: time.Second,
		}
	}

	It("completes a scripted run and reports the result", func() {
		agent, err := testutil.NewAgentScript().
			First(
				testutil.InitEvent("sess-1"),
				testutil.AssistantText("sess-1", "working"),
				testutil.ResultEvent("sess-1", "all done"),
			).
			Write(workspace)
		Expect(err).NotTo(HaveOccurred())

		res, err := executor.Run(context.Background(), options(agent))
		Expect(err).NotTo(HaveOccurred())
		Expect(res.Success).To(BeTrue())
		Expect(res.State).To(Equal(executor.StateCompleted))
		Expect(res.Output).To(Equal("all done"))
		Expect(res.SessionID).To(Equal("sess-1"))

		prompt, err := testutil.StdinMessage(workspace, "prompt.json")
		Expect(err).NotTo(HaveOccurred())
		Expect(prompt).To(Equal("do the task"))
	})

	It("answers a choice marker and resumes the session with the answer", func() {
		agent, err := testutil.NewAgentScript().
			First(
				testutil.InitEvent("sess-2"),
				testutil.AssistantText("sess-2", testutil.ChoiceMarker("Which database?", "postgres", "sqlite")),
				testutil.ResultEvent("sess-2", "waiting for the selection"),
			).
			Resume(
				testutil.ResultEvent("sess-2", "configured postgres"),
			).
			Write(workspace)
		Expect(err).NotTo(HaveOccurred())

		opts := options(agent)
		var asked *interact.Request
		opts.Interact = testutil.InteractFunc(func(_ context.Context, req *interact.Request) (string, error) {
			asked = req
			return "postgres", nil
		})

		res, err := executor.Run(context.Background(), opts)
		Expect(err).NotTo(HaveOccurred())
		Expect(res.Success).To(BeTrue())
		Expect(res.Output).To(Equal("configured postgres"))
		Expect(res.ChoicesAsked).To(Equal(1))

		Expect(asked).NotTo(BeNil())
		Expect(asked.Kind).To(Equal(interact.KindChoice))
		Expect(asked.Question).To(Equal("Which database?"))
		Expect(asked.Options).To(Equal([]string{"postgres", "sqlite"}))

		// The second invocation resumes the captured session.
		invocations, err := testutil.ArgsLog(workspace)
		Expect(err).NotTo(HaveOccurred())
		Expect(invocations).To(HaveLen(2))
		Expect(invocations[0]).NotTo(ContainSubstring("--resume"))
		Expect(invocations[1]).To(ContainSubstring("--resume sess-2"))

		// Protocol instructions are appended exactly once.
		Expect(invocations[0]).To(ContainSubstring("--append-system-prompt"))
		Expect(invocations[1]).NotTo(ContainSubstring("--append-system-prompt"))

		answer, err := testutil.StdinMessage(workspace, "answer.json")
		Expect(err).NotTo(HaveOccurred())
		Expect(answer).To(Equal("I choose: postgres"))
	})

	It("treats a declined confirmation as a No answer", func() {
		agent, err := testutil.NewAgentScript().
			First(
				testutil.InitEvent("sess-3"),
				testutil.AssistantText("sess-3", testutil.ConfirmationMarker("Delete the data?", "This cannot be undone")),
				testutil.ResultEvent("sess-3", "awaiting confirmation"),
			).
			Resume(
				testutil.ResultEvent("sess-3", "left the data alone"),
			).
			Write(workspace)
		Expect(err).NotTo(HaveOccurred())

		opts := options(agent)
		opts.Interact = testutil.InteractFunc(func(_ context.Context, req *interact.Request) (string, error) {
			Expect(req.Warning).To(Equal("This cannot be undone"))
			return "No", nil
		})

		res, err := executor.Run(context.Background(), opts)
		Expect(err).NotTo(HaveOccurred())
		Expect(res.Success).To(BeTrue())
		Expect(res.ConfirmationsAsked).To(Equal(1))

		answer, err := testutil.StdinMessage(workspace, "answer.json")
		Expect(err).NotTo(HaveOccurred())
		Expect(answer).To(Equal("CONFIRMED: No"))
	})

	It("forcibly terminates a run that exceeds the execution timeout", func() {
		// Emit chatter forever so only the execution cap can fire.
		script := "#!/bin/sh\nhead -n1 > /dev/null\nwhile true; do\n" +
			"  printf '%s\\n' '" + testutil.AssistantText("sess-4", "still going") + "'\n" +
			"  sleep 0.5\ndone\n"
		agent := filepath.Join(workspace, "agent.sh")
		Expect(os.WriteFile(agent, []byte(script), 0o755)).To(Succeed())

		opts := options(agent)
		opts.ExecutionTimeout = 3 * time.Second
		opts.InactivityTimeout = 2 * time.Second

		start := time.Now()
		res, err := executor.Run(context.Background(), opts)
		Expect(err).NotTo(HaveOccurred())
		Expect(res.Success).To(BeFalse())
		Expect(res.State).To(Equal(executor.StateTimedOut))
		Expect(res.Error).To(ContainSubstring("execution exceeded"))
		Expect(time.Since(start)).To(BeNumerically("<", 10*time.Second))
		Expect(res.Output).To(ContainSubstring("still going"), "partial output is preserved")
	})

	It("reports a cancelled run as cancelled, not failed", func() {
		script := "#!/bin/sh\nhead -n1 > /dev/null\nsleep 30\n"
		agent := filepath.Join(workspace, "agent.sh")
		Expect(os.WriteFile(agent, []byte(script), 0o755)).To(Succeed())

		ctx, cancel := context.WithCancel(context.Background())
		go func() {
			time.Sleep(500 * time.Millisecond)
			cancel()
		}()

		res, err := executor.Run(ctx, options(agent))
		Expect(err).NotTo(HaveOccurred())
		Expect(res.State).To(Equal(executor.StateCancelled))
		Expect(res.Success).To(BeFalse())
	})
})
