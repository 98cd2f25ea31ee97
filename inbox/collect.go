package inbox

import (
	"context"
	"time"

	"github.com/OperatorFoundation/nahoftu4i/observability"
	"github.com/OperatorFoundation/nahoftu4i/reconstruct"
)

// Collect saves every payload received on payloads until the channel closes
// or ctx is cancelled, returning the number saved. A failed save is reported
// to observer and does not stop collection.
func Collect(ctx context.Context, payloads <-chan reconstruct.Payload, store Store, observer observability.Observer) (int, error) {
	if observer == nil {
		observer = observability.NoOpObserver{}
	}

	saved := 0
	for {
		select {
		case <-ctx.Done():
			return saved, ctx.Err()
		case p, ok := <-payloads:
			if !ok {
				return saved, nil
			}

			msg := FromPayload(p)
			if err := store.Save(ctx, msg); err != nil {
				observer.OnEvent(ctx, observability.Event{
					Type:      EventSaveFailed,
					Level:     observability.LevelError,
					Timestamp: time.Now(),
					Source:    "inbox",
					Data: map[string]any{
						"identity": msg.Identity,
						"error":    err.Error(),
					},
				})
				continue
			}

			saved++
			observer.OnEvent(ctx, observability.Event{
				Type:      EventSaved,
				Level:     observability.LevelInfo,
				Timestamp: time.Now(),
				Source:    "inbox",
				Data: map[string]any{
					"id":       msg.ID,
					"identity": msg.Identity,
					"bytes":    len(msg.Plaintext),
				},
			})
		}
	}
}
