// Package banksim computes, for every pair drawn from two collections of
// parametrized signals (templates and proposals), a noise-weighted
// normalized match against a shared spectrum.
//
// The engine scales to tens of thousands × tens of thousands of
// comparisons by combining cheap parameter-only pruning, per-Tag waveform
// memoization, and bounded batch traversal:
//
//   - Pruning filters (prune) skip pairs by chirp-mass and chirp-time
//     windows without synthesizing anything.
//   - The waveform cache (cache) guarantees at most one synthesis per
//     entity Tag per run, failed syntheses included.
//   - The batch scheduler (batch) bounds the cache's resident set: the
//     driver clears the cache between outer batches.
//   - The match evaluator (match) computes sigmas and the time/phase
//     maximized overlap against the shared noise spectrum (psd).
//   - The result sink (sink) records exactly one line per pair, streaming
//     or buffered.
//
// # Quick start
//
//	templates, _ := bank.Load("bank.csv")
//	proposals, _ := bank.Load("injections.csv")
//	tag.Assign("bank", templates)
//	tag.Assign("sim", proposals)
//
//	out, _ := sink.NewStreaming(ctx, "results.dat", nil)
//	defer out.Close()
//
//	runner, err := banksim.New(banksim.DefaultConfig(), templates, proposals, out)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	stats, err := runner.Run(ctx)
//
// Output records are tab-separated lines of template tag, proposal tag,
// match and both normalizations. Control outcomes use the conventional
// numeric sentinels: -1 for a pruned pair, 1 (with unit normalizations)
// for an entity compared against itself, -2 when a side's signal could
// not be generated under failure tolerance.
//
// # Failure tolerance
//
// By default the first synthesis failure aborts the run. With
// Config.TolerateFailures the failing entity's signal becomes absent, all
// pairs involving it take the -2 path, and the run completes.
package banksim
