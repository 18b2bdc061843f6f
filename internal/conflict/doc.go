// Package conflict screens parallel groups for resource-path overlaps.
//
// Before the scheduler launches a wave, [Detector.Screen] intersects the
// resource-glob sets of every pair of candidate groups against the
// configured [Rule] table and produces a [Plan]: which groups may run
// concurrently, which must serialize behind a lock, and whether the wave
// must fall back to fully serial execution.
//
// # Severity Ordering
//
//   - fatal: the parallel launch is abandoned; every affected group runs
//     serially.
//   - error, major: the overlapping scope is locked and only the
//     overlapping groups serialize; unaffected groups stay parallel.
//   - minor: logged, execution proceeds unchanged.
//
// When multiple rules match the same pair, the rule with the highest
// configured priority (lowest priority number) wins.
//
// # Mid-Run Watching
//
// [Watcher] observes group workspaces with fsnotify while a wave runs and
// reports writes that fall outside a group's declared resource patterns.
// The scheduler treats such reports as conflict-detected-midrun outcomes
// and feeds them to the downgrade engine as repeated-conflict signals.
package conflict
