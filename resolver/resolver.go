// Package resolver classifies status snapshots into verdicts.
//
// The remote service exposes no explicit "finished" signal, so completion is
// inferred from each snapshot plus a small amount of memory about what was
// observed earlier in the same trigger cycle. Rules are evaluated in order:
//
//  1. InProgress                                  -> Progress
//  2. !InProgress, TotalFiles > 0, copied == total -> Completed (primary)
//  3. !InProgress, job seen running before         -> Completed (fallback)
//  4. anything else                                -> NoOp (not started yet)
//
// Rule 3 fires even when FilesCopied != TotalFiles; callers can tell the two
// completions apart through Resolution.Path. Errors in a snapshot are
// advisory and never change the verdict.
package resolver

import (
	"math"
	"slices"

	"github.com/MateoLopez004/Gobackup/types"
)

// Resolve classifies snap and updates mem. mem must be fresh for every
// trigger cycle. A nil mem behaves as a cycle with no history and is not
// updated.
func Resolve(snap types.StatusSnapshot, mem *types.PollMemory) types.Resolution {
	seenBefore := mem.ObservedRunning()
	advance(mem, snap.InProgress)

	res := types.Resolution{
		Percent:  Percent(snap.FilesCopied, snap.TotalFiles),
		Warnings: slices.Clone(snap.Errors),
	}

	switch {
	case snap.InProgress:
		res.Verdict = types.VerdictProgress

	case snap.TotalFiles > 0 && snap.FilesCopied == snap.TotalFiles:
		res.Verdict = types.VerdictCompleted
		res.Path = types.PathPrimary

	case seenBefore:
		res.Verdict = types.VerdictCompleted
		res.Path = types.PathFallback
		if snap.TotalFiles == 0 {
			res.Percent = 100
		}

	default:
		res.Verdict = types.VerdictNoOp
	}

	return res
}

// Percent returns round(copied/total*100) clamped to [0, 100],
// or 0 when total is not positive.
func Percent(copied, total int) int {
	if total <= 0 {
		return 0
	}
	p := int(math.Round(float64(copied) / float64(total) * 100))
	return min(max(p, 0), 100)
}

func advance(mem *types.PollMemory, inProgress bool) {
	if mem == nil {
		return
	}
	switch {
	case inProgress:
		mem.Phase = types.PhaseRunning
	case mem.Phase == types.PhaseRunning:
		mem.Phase = types.PhaseStopped
	}
}
