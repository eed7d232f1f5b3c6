package console

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/pixelvide/syncqueue/pkg/queue"
	"github.com/pixelvide/syncqueue/pkg/root"
	"github.com/spf13/cobra"
)

var statsCmd = &cobra.Command{
	Use:   "queue:stats",
	Short: "Print statistics for the stored queue",
	RunE: func(cmd *cobra.Command, args []string) error {
		_, store, err := bootstrap(cmd.Context())
		if err != nil {
			return err
		}
		defer store.Close()

		ops, err := store.LoadAll(cmd.Context())
		if err != nil {
			return err
		}
		return writeJSON(cmd.OutOrStdout(), queue.Restore(ops).Stats())
	},
}

var (
	enqueueType     string
	enqueuePriority string
	enqueueData     string
)

var enqueueCmd = &cobra.Command{
	Use:   "queue:enqueue",
	Short: "Store an operation for the next queue:work run",
	RunE: func(cmd *cobra.Command, args []string) error {
		typ, err := queue.ParseType(enqueueType)
		if err != nil {
			return err
		}
		priority, err := queue.ParsePriority(enqueuePriority)
		if err != nil {
			return err
		}
		if !json.Valid([]byte(enqueueData)) {
			return fmt.Errorf("%w: --data is not valid JSON", queue.ErrInvalidPayload)
		}

		_, store, err := bootstrap(cmd.Context())
		if err != nil {
			return err
		}
		defer store.Close()

		op, err := queue.NewPublisher(storeEnqueuer{store}).Dispatch(cmd.Context(), typ, json.RawMessage(enqueueData), priority)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), op.ID)
		return nil
	},
}

// storeEnqueuer writes operations straight to the store for a later queue:work run
type storeEnqueuer struct {
	store queue.Store
}

func (e storeEnqueuer) Enqueue(ctx context.Context, op *queue.Operation) error {
	return e.store.Persist(ctx, op)
}

func (e storeEnqueuer) EnqueueBatch(ctx context.Context, ops []*queue.Operation) error {
	for _, op := range ops {
		if err := e.store.Persist(ctx, op); err != nil {
			return err
		}
	}
	return nil
}

var retryAll bool

var retryCmd = &cobra.Command{
	Use:   "queue:retry [id...]",
	Short: "Return failed operations to pending",
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) == 0 && !retryAll {
			return errors.New("pass operation ids or --all")
		}
		ctx := cmd.Context()
		_, store, err := bootstrap(ctx)
		if err != nil {
			return err
		}
		defer store.Close()

		ops, err := store.LoadAll(ctx)
		if err != nil {
			return err
		}
		q := queue.Restore(ops)

		ids := args
		if retryAll {
			ids = nil
			for _, op := range q.Failed() {
				ids = append(ids, op.ID)
			}
		}

		n := 0
		for _, id := range ids {
			op, err := q.Reset(id)
			if err != nil {
				return err
			}
			if err := store.Update(ctx, op); err != nil {
				return err
			}
			n++
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%d operation(s) requeued\n", n)
		return nil
	},
}

var clearForce bool

var clearCmd = &cobra.Command{
	Use:   "queue:clear",
	Short: "Delete every stored operation",
	RunE: func(cmd *cobra.Command, args []string) error {
		if !clearForce {
			return errors.New("refusing to clear the queue without --force")
		}
		_, store, err := bootstrap(cmd.Context())
		if err != nil {
			return err
		}
		defer store.Close()

		if err := store.Clear(cmd.Context()); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Queue cleared")
		return nil
	},
}

func init() {
	enqueueCmd.Flags().StringVar(&enqueueType, "type", "", "Operation type")
	enqueueCmd.Flags().StringVar(&enqueuePriority, "priority", "normal", "low, normal, high or critical")
	enqueueCmd.Flags().StringVar(&enqueueData, "data", "{}", "Operation data as JSON")
	_ = enqueueCmd.MarkFlagRequired("type")

	retryCmd.Flags().BoolVar(&retryAll, "all", false, "Requeue every failed operation")
	clearCmd.Flags().BoolVar(&clearForce, "force", false, "Confirm deletion")

	root.GetRoot().AddCommand(statsCmd, enqueueCmd, retryCmd, clearCmd)
}
