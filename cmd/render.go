package main

import (
	"context"
	"fmt"
	"io"
	"livon-client/internal/core/domain"
	"strings"
	"sync"
	"time"
)

type messageSource interface {
	Messages() []domain.Message
}

// renderer prints session events as they arrive; each message is printed once.
type renderer struct {
	mu      sync.Mutex
	out     io.Writer
	self    string
	printed map[string]struct{}
	now     func() time.Time
}

func newRenderer(out io.Writer, self string) *renderer {
	return &renderer{out: out, self: self, printed: make(map[string]struct{}), now: time.Now}
}

func (r *renderer) run(ctx context.Context, src messageSource, events <-chan domain.Event) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case evt := <-events:
			if err := r.render(src, evt); err != nil {
				return err
			}
		}
	}
}

func (r *renderer) render(src messageSource, evt domain.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	switch evt.Kind {
	case domain.EventMessagesChanged:
		for _, m := range src.Messages() {
			key := "s:" + m.ID
			if m.ClientMsgID != "" {
				key = "c:" + m.ClientMsgID
			}
			if _, ok := r.printed[key]; ok {
				continue
			}
			r.printed[key] = struct{}{}
			fmt.Fprintln(r.out, r.formatMessage(m))
		}
	case domain.EventStateChanged:
		line := fmt.Sprintf("* %s", evt.State)
		if evt.Err != "" {
			line += " (" + evt.Err + ")"
		}
		fmt.Fprintln(r.out, line)
	case domain.EventUserNotification:
		fmt.Fprintf(r.out, "* %s\n", evt.Notice)
	case domain.EventPresenceChanged:
		fmt.Fprintf(r.out, "* online: %s\n", strings.Join(evt.Users, ", "))
	case domain.EventTypingChanged:
		if len(evt.Users) > 0 {
			fmt.Fprintf(r.out, "* typing: %s\n", strings.Join(evt.Users, ", "))
		}
	case domain.EventErrorReported:
		fmt.Fprintf(r.out, "! %s %s\n", evt.Code, evt.Err)
	case domain.EventAuthFailed:
		fmt.Fprintf(r.out, "! authentication rejected: %s\n", evt.Err)
		return domain.ErrAuthRejected
	}
	return nil
}

func (r *renderer) formatMessage(m domain.Message) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %s: %s", m.Age(r.now()), m.Sender, m.Content)
	if m.Attachment != nil {
		fmt.Fprintf(&b, " [%s %s, %s]", m.Attachment.Type, m.Attachment.Name, m.Attachment.HumanSize())
	}
	if m.Pending {
		b.WriteString(" (sending)")
	}
	return b.String()
}

func (r *renderer) failure(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fmt.Fprintf(r.out, "! %v\n", err)
}
