// Package nn implements the small feed-forward networks used as coupling
// conditioners.
//
// Networks are stateless: a network is described by its layer sizes, its
// weights live in Layer values created by an initializer, and Forward reads
// those weights without modifying them. This lets a single set of weights
// be shared by concurrent forward calls and stored in a parameter tree.
//
//	layers, _ := nn.NewMLP(key.Rand(), 3, 128, 128, 47)
//	out, _ := nn.Forward(layers, batch) // [batch, 3] -> [batch, 47]
package nn
