package dispatch

import (
	"fmt"

	"github.com/nickborrello/baystate-coordinator/internal/config"
	"github.com/nickborrello/baystate-coordinator/internal/dispatch/workflow"
)

// New constructs the dispatcher selected by deployment configuration.
// Called once at server startup; the strategy is per deployment, not per job.
// A nil trigger gets the default HTTP workflow client in push mode.
func New(cfg config.DispatchConfig, trigger workflow.Trigger) (Dispatcher, error) {
	switch cfg.Mode {
	case config.DispatchModePush:
		if trigger == nil {
			trigger = workflow.NewHTTPClient(cfg.BaseURL, cfg.Token, cfg.Repository, cfg.WorkflowRef, cfg.Timeout)
		}
		return NewPushDispatcher(trigger, cfg.MaxRunners), nil
	case config.DispatchModePull:
		return NewPullDispatcher(cfg.MaxRunners), nil
	default:
		return nil, fmt.Errorf("unknown dispatch mode %q: must be push or pull", cfg.Mode)
	}
}
