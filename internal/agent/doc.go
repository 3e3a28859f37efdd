// Package agent maps task types to the agent descriptors that can execute
// them. The registry is populated once at startup, sealed, and read-only
// thereafter: dispatch never inspects types at runtime, it resolves a
// first-class descriptor or fails fast.
package agent
