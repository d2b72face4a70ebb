package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"dvrflow/internal/logging"
	"dvrflow/internal/naming"
	"dvrflow/internal/services"
)

// finalize applies the replace policies. An input is only removed once a
// successor artifact is verified to exist with content; removal failures
// become warnings and never fail the item.
func (o *Orchestrator) finalize(ctx context.Context, st *itemState) {
	logger := logging.WithContext(services.WithStage(ctx, StageFinalizing), o.logger)
	plan := st.plan
	finalReady := plan.Final != "" && naming.NonEmpty(plan.Final)

	if o.cfg.Decrypt.Replace && st.layout.Decrypt && plan.Source != plan.Decrypted {
		if naming.NonEmpty(plan.Decrypted) || finalReady {
			o.removeReplaced(logger, st, plan.Source, "decrypt.replace")
		}
	}

	if o.scope == ScopeFull && o.cfg.Transcode.Replace && finalReady {
		if plan.Decrypted != plan.Final {
			o.removeReplaced(logger, st, plan.Decrypted, "transcode.replace")
		}
		o.removeReplaced(logger, st, plan.CutList, "transcode.replace")
	}
}

func (o *Orchestrator) removeReplaced(logger *slog.Logger, st *itemState, path, policy string) {
	if path == "" || path == st.current || !naming.Exists(path) {
		return
	}
	if err := os.Remove(path); err != nil {
		wrapped := services.Wrap(services.ErrCleanup, StageFinalizing, "remove", fmt.Sprintf("removing %s failed", path), err)
		st.warn(wrapped.Error())
		logging.WarnWithContext(logger, "replace cleanup failed", "cleanup_warning",
			logging.String("path", path),
			logging.String("policy", policy),
			logging.Error(err),
			logging.String(logging.FieldImpact, "input left in place alongside its replacement"))
		return
	}
	logger.Info("replaced input removed",
		logging.String(logging.FieldEventType, "input_replaced"),
		logging.String("path", path),
		logging.String("policy", policy))
}
