// Package scenes ships the built-in demo plans the daemon submits to the
// motion scheduler: one manual (frame-stepped) performer and one continuous
// (self-driven) performer, so both activity categories get exercised.
package scenes
