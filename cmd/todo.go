package cmd

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"todoapi/internal/bootstrap"
	"todoapi/internal/bootstrap/logging"
	domaintodo "todoapi/internal/domain/todo"
	"todoapi/internal/errs"
	"todoapi/internal/usecase/todo"
)

var todoCmd = &cobra.Command{
	Use:   "todo",
	Short: "Manage todos directly against the database",
}

var todoCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a todo",
	RunE: withApp(func(cmd *cobra.Command, _ *bootstrap.App, svc *todo.Service) error {
		ctx := logging.WithAttrs(cmd.Context(), slog.String("command", cmd.CommandPath()))

		title, _ := cmd.Flags().GetString("title")
		key, _ := cmd.Flags().GetString("idempotency-key")
		created, err := svc.Create(ctx, todo.CreateInput{
			Title:          title,
			Description:    descriptionFlag(cmd),
			IdempotencyKey: key,
		})
		if err != nil {
			logging.Error(ctx, "create todo failed", slog.Any("err", errs.Loggable(err)))
			return errs.Wrap(err, "create todo")
		}
		return printTodos(cmd, created)
	}),
}

var todoListCmd = &cobra.Command{
	Use:   "list",
	Short: "List todos",
	RunE: withApp(func(cmd *cobra.Command, _ *bootstrap.App, svc *todo.Service) error {
		ctx := logging.WithAttrs(cmd.Context(), slog.String("command", cmd.CommandPath()))

		items, err := svc.List(ctx)
		if err != nil {
			return errs.Wrap(err, "list todos")
		}
		return printTodos(cmd, items...)
	}),
}

var todoGetCmd = &cobra.Command{
	Use:   "get <id>",
	Short: "Show one todo",
	Args:  cobra.ExactArgs(1),
	RunE: withIDArg(func(cmd *cobra.Command, svc *todo.Service, id uuid.UUID) error {
		item, err := svc.Get(cmd.Context(), id)
		if err != nil {
			return errs.Wrap(err, "get todo")
		}
		return printTodos(cmd, item)
	}),
}

var todoUpdateCmd = &cobra.Command{
	Use:   "update <id>",
	Short: "Replace a todo's title and description",
	Args:  cobra.ExactArgs(1),
	RunE: withIDArg(func(cmd *cobra.Command, svc *todo.Service, id uuid.UUID) error {
		title, _ := cmd.Flags().GetString("title")
		updated, err := svc.Update(cmd.Context(), todo.UpdateInput{
			ID:          id,
			Title:       title,
			Description: descriptionFlag(cmd),
		})
		if err != nil {
			return errs.Wrap(err, "update todo")
		}
		return printTodos(cmd, updated)
	}),
}

var todoCompleteCmd = &cobra.Command{
	Use:   "complete <id>",
	Short: "Mark a todo as completed",
	Args:  cobra.ExactArgs(1),
	RunE: withIDArg(func(cmd *cobra.Command, svc *todo.Service, id uuid.UUID) error {
		item, err := svc.MarkAsCompleted(cmd.Context(), id)
		if err != nil {
			return errs.Wrap(err, "complete todo")
		}
		return printTodos(cmd, item)
	}),
}

var todoUncompleteCmd = &cobra.Command{
	Use:   "uncomplete <id>",
	Short: "Mark a todo as not completed",
	Args:  cobra.ExactArgs(1),
	RunE: withIDArg(func(cmd *cobra.Command, svc *todo.Service, id uuid.UUID) error {
		item, err := svc.MarkAsNotCompleted(cmd.Context(), id)
		if err != nil {
			return errs.Wrap(err, "uncomplete todo")
		}
		return printTodos(cmd, item)
	}),
}

var todoDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a todo",
	Args:  cobra.ExactArgs(1),
	RunE: withIDArg(func(cmd *cobra.Command, svc *todo.Service, id uuid.UUID) error {
		if err := svc.Delete(cmd.Context(), id); err != nil {
			return errs.Wrap(err, "delete todo")
		}
		if _, err := fmt.Fprintf(cmd.OutOrStdout(), "deleted todo: %s\n", id); err != nil {
			return errs.Wrap(err, "write delete output")
		}
		return nil
	}),
}

func withIDArg(run func(cmd *cobra.Command, svc *todo.Service, id uuid.UUID) error) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		id, err := uuid.Parse(strings.TrimSpace(args[0]))
		if err != nil {
			return errs.Wrapf(err, "parse todo id %q", args[0])
		}
		return withApp(func(cmd *cobra.Command, _ *bootstrap.App, svc *todo.Service) error {
			ctx := logging.WithAttrs(cmd.Context(),
				slog.String("command", cmd.CommandPath()),
				slog.String("todo_id", id.String()),
			)
			cmd.SetContext(ctx)
			return run(cmd, svc, id)
		})(cmd, args)
	}
}

// descriptionFlag returns nil unless --description was given.
func descriptionFlag(cmd *cobra.Command) *string {
	if !cmd.Flags().Changed("description") {
		return nil
	}
	v, _ := cmd.Flags().GetString("description")
	return &v
}

func printTodos(cmd *cobra.Command, items ...domaintodo.Todo) error {
	format, _ := cmd.Flags().GetString("output")
	snapshots := make([]domaintodo.Snapshot, 0, len(items))
	for _, item := range items {
		snapshots = append(snapshots, item.Snapshot())
	}
	return writeTodos(cmd.OutOrStdout(), format, snapshots)
}

func init() {
	rootCmd.AddCommand(todoCmd)
	todoCmd.AddCommand(todoCreateCmd, todoListCmd, todoGetCmd, todoUpdateCmd, todoCompleteCmd, todoUncompleteCmd, todoDeleteCmd)

	todoCmd.PersistentFlags().StringP("output", "o", "table", "Output format: table|json|yaml")

	todoCreateCmd.Flags().String("title", "", "Todo title")
	todoCreateCmd.Flags().String("description", "", "Todo description")
	todoCreateCmd.Flags().String("idempotency-key", "", "Return the earlier result when retried with the same key")
	_ = todoCreateCmd.MarkFlagRequired("title")

	todoUpdateCmd.Flags().String("title", "", "New title")
	todoUpdateCmd.Flags().String("description", "", "New description (omit to clear)")
	_ = todoUpdateCmd.MarkFlagRequired("title")
}
