package model

import "time"

// RequestLineItem is one row of an issue or purchase request. ItemID may
// refer to an item that has since been deleted.
type RequestLineItem struct {
	ItemID   string `json:"itemId"`
	Quantity int    `json:"quantity"`
	Unit     string `json:"unit"`
	Note     string `json:"note,omitempty"`
}

// IssueRequest asks for stock to be drawn from inventory.
type IssueRequest struct {
	ID          string            `json:"id"`
	CreatedAt   time.Time         `json:"createdAt"`
	UpdatedAt   time.Time         `json:"updatedAt"`
	RequestedBy string            `json:"requestedBy"`
	Status      string            `json:"status"`
	LineItems   []RequestLineItem `json:"lineItems"`
	Memo        string            `json:"memo,omitempty"`
}

// PurchaseRequest asks for new stock to be bought.
type PurchaseRequest struct {
	ID             string            `json:"id"`
	CreatedAt      time.Time         `json:"createdAt"`
	UpdatedAt      time.Time         `json:"updatedAt"`
	RequestedBy    string            `json:"requestedBy"`
	Status         string            `json:"status"`
	LineItems      []RequestLineItem `json:"lineItems"`
	Memo           string            `json:"memo,omitempty"`
	AttachmentName string            `json:"attachmentName,omitempty"`
}

// Request statuses. Issue requests end in fulfilled, purchase requests in ordered.
const (
	StatusDraft     = "draft"
	StatusSubmitted = "submitted"
	StatusApproved  = "approved"
	StatusRejected  = "rejected"
	StatusFulfilled = "fulfilled"
	StatusOrdered   = "ordered"
)

var issueTransitions = map[string][]string{
	StatusDraft:     {StatusSubmitted},
	StatusSubmitted: {StatusApproved, StatusRejected, StatusDraft},
	StatusApproved:  {StatusFulfilled, StatusSubmitted},
	StatusRejected:  {StatusSubmitted},
	StatusFulfilled: {StatusApproved, StatusSubmitted},
}

var purchaseTransitions = map[string][]string{
	StatusDraft:     {StatusSubmitted},
	StatusSubmitted: {StatusApproved, StatusRejected, StatusDraft},
	StatusApproved:  {StatusOrdered, StatusSubmitted},
	StatusRejected:  {StatusSubmitted},
	StatusOrdered:   {StatusApproved, StatusSubmitted},
}

// CanTransitionIssue reports whether an issue request may move from one
// status to another, including administrative back-transitions.
// The state store does not enforce this; callers check before dispatching.
func CanTransitionIssue(from, to string) bool {
	return canTransition(issueTransitions, from, to)
}

// CanTransitionPurchase is CanTransitionIssue for purchase requests.
func CanTransitionPurchase(from, to string) bool {
	return canTransition(purchaseTransitions, from, to)
}

func canTransition(table map[string][]string, from, to string) bool {
	if from == to {
		_, ok := table[from]
		return ok
	}
	for _, s := range table[from] {
		if s == to {
			return true
		}
	}
	return false
}
