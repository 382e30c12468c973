// Package harness runs YAML scenarios against a real execution engine.
//
// A scenario is an ordered list of steps. Each step either executes a block,
// changes the environment from the host side, saves or restores a
// checkpoint, clears the cache, or renders a whole document. Steps may carry
// expectations; assertions run after the last step.
//
// # Scenario Format
//
//	name: end_to_end
//	description: "Rebinding x invalidates y"
//	engine:
//	  capacity: 100
//	steps:
//	  - execute: "x = 5"
//	    index: 0
//	    expect:
//	      success: true
//	      cache_hit: false
//	      env: { x: "5" }
//	  - set: { x: 10 }
//	  - checkpoint: 1
//	  - restore: 1
//	  - clear: true
//	  - render: "```\nx = 1\n```\n"
//	    expect:
//	      output: ""
//	assertions:
//	  - type: stats
//	    expect: { cache_hits: 1 }
//	  - type: final_env
//	    env: { x: "10" }
//	  - type: record_count
//	    hit: true
//	    count: 1
//
// # Assertion Types
//
//   - final_env: the environment snapshot equals env exactly
//   - stats: the listed counters equal expect
//   - record_count: the execution log holds count records (optionally only
//     hits or only misses)
//
// # Deterministic Testing
//
// Every scenario runs with a fake wall clock, a fixed session ID and a fresh
// in-memory execution log. Traces leave out cache keys and timings, so
// golden transcripts are stable across runs and machines.
package harness
