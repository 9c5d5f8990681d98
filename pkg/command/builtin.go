package command

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

// CommandFactory 为每个请求构建一棵新的 cobra 命令树，flag 状态不会在请求间共享。
type CommandFactory func() *cobra.Command

// NewFactory 返回内置聊天命令的工厂：/history、/sources、/route、/session。
func NewFactory() CommandFactory {
	return func() *cobra.Command {
		root := &cobra.Command{
			Use:           "bot",
			Short:         "Conversational RAG chat commands",
			SilenceUsage:  true,
			SilenceErrors: true,
		}
		root.AddCommand(
			newHistoryCmd(),
			newSourcesCmd(),
			newRouteCmd(),
			newSessionCmd(),
		)
		return root
	}
}

func execContext(cmd *cobra.Command) (*ExecutionContext, error) {
	execCtx := FromContext(cmd.Context())
	if execCtx == nil {
		return nil, ErrNoExecutionContext
	}
	return execCtx, nil
}

func newHistoryCmd() *cobra.Command {
	var last int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show the message history of the current session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			execCtx, err := execContext(cmd)
			if err != nil {
				return err
			}
			if execCtx.History() == nil {
				return fmt.Errorf("%w: history", ErrServiceUnavailable)
			}

			msgs, err := execCtx.History().History(cmd.Context(), execCtx.Request.SessionID)
			if err != nil {
				return err
			}
			if last > 0 && len(msgs) > last {
				msgs = msgs[len(msgs)-last:]
			}
			if len(msgs) == 0 {
				cmd.Println("(empty)")
				return nil
			}
			for _, m := range msgs {
				cmd.Printf("[%s] %s\n", m.Role, m.Content)
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&last, "last", "n", 0, "only show the last n messages")
	return cmd
}

func newSourcesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sources",
		Short: "Show the context fragments used by the last answer",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			execCtx, err := execContext(cmd)
			if err != nil {
				return err
			}
			sources := execCtx.Values.Sources()
			if len(sources) == 0 {
				cmd.Println("no sources recorded for this session")
				return nil
			}
			cmd.Printf("query: %s\n", execCtx.Values[KeyLastQuery])
			for i, s := range sources {
				cmd.Printf("--- [%d] ---\n%s\n", i+1, s)
			}
			return nil
		},
	}
}

func newRouteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "route <text>",
		Short: "Answer with the physics, poem or history expert",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			execCtx, err := execContext(cmd)
			if err != nil {
				return err
			}
			if execCtx.Router() == nil {
				return fmt.Errorf("%w: router", ErrServiceUnavailable)
			}

			res, err := execCtx.Router().Route(cmd.Context(), strings.Join(args, " "))
			if err != nil {
				return err
			}
			cmd.Printf("[%s]\n%s\n", res.Destination, res.Answer)
			return nil
		},
	}
}

func newSessionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "session [id]",
		Short: "Show or switch the current session",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			execCtx, err := execContext(cmd)
			if err != nil {
				return err
			}
			if len(args) == 0 {
				cmd.Printf("current session: %s\n", execCtx.Request.SessionID)
				return nil
			}
			cmd.Printf("switched to session %s\n", args[0])
			execCtx.SetResponsePayload(SessionSwitch{SessionID: args[0]})
			return nil
		},
	}
}
