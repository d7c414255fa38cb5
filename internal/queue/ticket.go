package queue

import (
	"context"
	"fmt"
	"strings"
)

const (
	ticketPrefixLen = 3
	ticketNumberPad = 3
)

type Counter interface {
	NextTicketNumber(ctx context.Context, clinicID string) (int64, error)
}

// Allocator hands out clinic-scoped queue numbers such as "GEN001".
type Allocator struct {
	counter Counter
}

func NewAllocator(counter Counter) *Allocator {
	return &Allocator{counter: counter}
}

func (a *Allocator) NextTicket(ctx context.Context, clinicID, clinicName string) (string, error) {
	seq, err := a.counter.NextTicketNumber(ctx, clinicID)
	if err != nil {
		return "", fmt.Errorf("next ticket number: %w", err)
	}
	return FormatTicket(clinicName, seq), nil
}

func FormatTicket(clinicName string, seq int64) string {
	return fmt.Sprintf("%s%0*d", TicketPrefix(clinicName), ticketNumberPad, seq)
}

func TicketPrefix(clinicName string) string {
	runes := []rune(clinicName)
	if len(runes) > ticketPrefixLen {
		runes = runes[:ticketPrefixLen]
	}
	return strings.ToUpper(string(runes))
}
