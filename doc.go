// Package neatgraph is a NEAT (NeuroEvolution of Augmenting Topologies) genome
// engine.
//
// Genomes are directed acyclic graphs of input, hidden and output nodes joined
// by weighted links. Structural mutations get their identifiers from an
// innovation log (neat.State) shared by the whole lineage, so the same
// structural event always yields the same hidden node id and innovation
// numbers, whichever genome or goroutine performs it first. Crossover aligns
// genes on those numbers, and the compatibility distance built on them drives
// speciation.
//
// Package neat holds the genome engine and the evolutionary loop around it,
// neat/nn compiles genomes into flat feed-forward programs, and neat/store
// persists lineages.
//
// A run loads a config, seeds a population and hands it an evaluator:
//
//	config, err := neat.LoadConfig("xor.ini")
//	if err != nil {
//		return err
//	}
//	pop, err := neat.NewPopulation(config, neat.WithLogger(logger))
//	if err != nil {
//		return err
//	}
//	evaluate := nn.EvaluateAll(nn.EvaluatorFunc(score), 4)
//	winner, err := pop.Run(ctx, evaluate, 100)
//
// score receives each genome compiled to an *nn.Program and returns its
// fitness. winner is nil when no generation reached the fitness threshold;
// pop.Best still holds the fittest organism seen.
package neatgraph
