package chaindata

import "github.com/prysmaticlabs/attestpipe/primitives"

// Block is the minimal signed-block envelope the chain data layer
// reasons about: which slot it occupies, its own root, and the root it
// builds on. The full block body is an external collaborator.
type Block struct {
	Slot       primitives.Slot
	Root       primitives.Root
	ParentRoot primitives.Root
	StateRoot  primitives.Root
}
