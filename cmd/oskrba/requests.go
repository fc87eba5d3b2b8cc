package main

import (
	"context"
	"errors"
	"flag"
	"fmt"

	"github.com/erazemk/oskrba/internal/config"
	"github.com/erazemk/oskrba/internal/model"
	"github.com/erazemk/oskrba/internal/state"
)

// reviewStatuses may only be set by an admin.
var reviewStatuses = map[string]bool{
	model.StatusApproved:  true,
	model.StatusRejected:  true,
	model.StatusFulfilled: true,
	model.StatusOrdered:   true,
}

func cmdRequest(cfg config.Config, args []string) error {
	fs := flag.NewFlagSet("request", flag.ContinueOnError)
	id := fs.String("id", "", "request id (omit to list requests)")
	status := fs.String("status", "", "new status")
	if err := fs.Parse(args); err != nil {
		return err
	}

	ctx := context.Background()
	c, err := openClient(ctx, cfg)
	if err != nil {
		return err
	}
	defer c.Close()

	s := c.orch.State()
	if *id == "" {
		listRequests(s)
		return nil
	}
	if *status == "" {
		return errors.New("request: -status is required with -id")
	}

	u, err := c.currentUser(ctx)
	if err != nil {
		return err
	}
	if reviewStatuses[*status] && !u.IsAdmin() {
		return fmt.Errorf("request: admin role required to set %s", *status)
	}

	a, err := transition(s, *id, *status, u.ID)
	if err != nil {
		return err
	}
	if err := c.orch.Dispatch(a); err != nil {
		return err
	}
	c.orch.Wait()
	if msg := c.orch.SyncInfo().Error; msg != "" {
		return fmt.Errorf("updated locally but not saved: %s", msg)
	}
	fmt.Printf("Request %s is now %s.\n", *id, *status)
	return nil
}

// transition builds the upsert moving request id to status.
func transition(s model.AppState, id, status, actorID string) (state.Action, error) {
	for _, r := range s.IssueRequests {
		if r.ID != id {
			continue
		}
		if !model.CanTransitionIssue(r.Status, status) {
			return nil, fmt.Errorf("request: issue request cannot go from %s to %s", r.Status, status)
		}
		from := r.Status
		r.Status = status
		return state.UpsertIssueRequest{Request: r, ActorID: actorID, Description: statusChange(from, status)}, nil
	}
	for _, r := range s.PurchaseRequests {
		if r.ID != id {
			continue
		}
		if !model.CanTransitionPurchase(r.Status, status) {
			return nil, fmt.Errorf("request: purchase request cannot go from %s to %s", r.Status, status)
		}
		from := r.Status
		r.Status = status
		return state.UpsertPurchaseRequest{Request: r, ActorID: actorID, Description: statusChange(from, status)}, nil
	}
	return nil, fmt.Errorf("request: no request %q", id)
}

func statusChange(from, to string) string {
	if from == to {
		return "updated request"
	}
	return fmt.Sprintf("moved request from %s to %s", from, to)
}

func listRequests(s model.AppState) {
	if len(s.IssueRequests)+len(s.PurchaseRequests) == 0 {
		fmt.Println("No requests.")
		return
	}
	for _, r := range s.IssueRequests {
		fmt.Printf("issue     %-12s %-10s %-20s %s\n", r.ID, r.Status, state.UserName(s, r.RequestedBy), state.RequestTarget(s, r.LineItems))
	}
	for _, r := range s.PurchaseRequests {
		fmt.Printf("purchase  %-12s %-10s %-20s %s\n", r.ID, r.Status, state.UserName(s, r.RequestedBy), state.RequestTarget(s, r.LineItems))
	}
}
