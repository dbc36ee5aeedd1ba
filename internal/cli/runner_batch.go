package cli

import (
	"context"
	"fmt"

	"github.com/johnqtcg/threaddigest/internal/config"
)

func (a *App) runBatch(ctx context.Context, cfg config.Config, p pipeline) (RunSummary, error) {
	var items []ItemResult

	err := a.inputReader.Read(ctx, cfg.InputFile, func(line string) error {
		item, _, processErr := a.processOne(ctx, cfg, ModeBatch, line, p)
		if processErr != nil {
			item.Status = StatusFailed
			item.Reason = processErr.Error()
			p.log.Warn().Str("url", line).Err(processErr).Msg("batch item failed")
		}

		items = append(items, item)
		writeStatusLine(a.stdout, item)
		return nil
	})
	if err != nil {
		return BuildSummary(items), fmt.Errorf("read batch input file %q: %w", cfg.InputFile, err)
	}

	return BuildSummary(items), nil
}
