package credential

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/sussurro/sussurro/internal/observe"
)

// WithRotation runs op with the pool's active credential, rotating to the
// next entry and retrying when op fails with an unauthorized (401/403) or
// rate-limited (429) classification. Any other failure is returned
// immediately. Each entry is tried at most once per call, so the loop
// terminates after at most Size attempts. A pool of exactly one
// entry treats rotation as a successful no-op and is granted a single retry
// with the same credential, so a one-key setup is not penalized for having
// nothing to rotate to.
//
// When the pool is empty or every entry has been tried,
// [ErrCredentialsExhausted] is returned wrapping the last underlying error.
func (p *Pool) WithRotation(ctx context.Context, op func(context.Context, Entry) error) error {
	_, err := WithRotationResult(ctx, p, func(ctx context.Context, e Entry) (struct{}, error) {
		return struct{}{}, op(ctx, e)
	})
	return err
}

// WithRotationResult is [Pool.WithRotation] for operations that produce a
// value. This is a package-level function because Go does not support
// method-level type parameters.
func WithRotationResult[R any](ctx context.Context, p *Pool, op func(context.Context, Entry) (R, error)) (R, error) {
	var (
		zero        R
		lastErr     error
		retriedSolo bool
	)
	tried := make(map[string]struct{})
	for {
		if err := ctx.Err(); err != nil {
			return zero, err
		}

		entry, ok := p.Active()
		if !ok {
			return zero, fmt.Errorf("%w (provider %q)", ErrEmptyPool, p.Provider())
		}
		if _, seen := tried[entry.ID]; seen {
			// A pool of one rotates onto itself; allow exactly one retry
			// with the same credential before giving up.
			if p.Size() == 1 && !retriedSolo {
				retriedSolo = true
			} else {
				return zero, fmt.Errorf("%w: %v", ErrCredentialsExhausted, lastErr)
			}
		}
		tried[entry.ID] = struct{}{}
		p.MarkUsed(entry.ID)

		result, err := op(ctx, entry)
		if err == nil {
			return result, nil
		}
		lastErr = err

		class := Classify(err)
		if !class.Rotatable() {
			return zero, err
		}
		slog.Debug("credential rejected, rotating",
			"provider", p.Provider(),
			"credential", entry.ID,
			"class", class.String(),
		)
		observe.DefaultMetrics().RecordCredentialRotation(ctx, p.Provider())
		p.Rotate()
	}
}
