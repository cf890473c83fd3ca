// Package model defines the core data types shared across the banksim engine:
// entities and their physical parameters, frequency-domain signals, the shared
// noise spectrum, and per-pair outcomes.
//
// All types here are plain values. Entities are read-only once loaded, signals
// are immutable once synthesized, and the spectrum is built once per run.
package model
