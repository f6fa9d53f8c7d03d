/*
Copyright © 2020 NAME HERE <EMAIL ADDRESS>

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package cmd

import (
	"fmt"
	"io/ioutil"
	"os"
	"sort"
	"sync"

	"github.com/pkg/profile"
	"github.com/spf13/cobra"

	"github.com/parfem/parmesh/config"
	"github.com/parfem/parmesh/distribute"
	"github.com/parfem/parmesh/mesh"
	"github.com/parfem/parmesh/parallel"
)

// constructCmd runs the full construction pipeline in-process on a
// synthetic channel mesh, mainly as a diagnostic and profiling harness.
var constructCmd = &cobra.Command{
	Use:   "construct",
	Short: "Construct a partitioned mesh with halos and a communication schedule",
	Long: `construct builds a synthetic 2D channel of quadrilateral elements,
distributes it over the requested number of in-process ranks, resolves the
halo layer and the periodic point correspondences, and prints the resulting
communication schedule.`,
	Run: func(cmd *cobra.Command, args []string) {
		var (
			K, _           = cmd.Flags().GetInt("nelem")
			np, _          = cmd.Flags().GetInt("nproc")
			periodic, _    = cmd.Flags().GetBool("periodic")
			markersFile, _ = cmd.Flags().GetString("markers")
			prof, _        = cmd.Flags().GetBool("profile")
		)
		if prof {
			defer profile.Start().Stop()
		}
		if K < 1 || np < 1 || np > K {
			fmt.Printf("invalid problem size: %d elements on %d ranks\n", K, np)
			os.Exit(1)
		}

		cfg := channelConfig(K, periodic)
		if markersFile != "" {
			data, err := ioutil.ReadFile(markersFile)
			if err != nil {
				fmt.Println(err)
				os.Exit(1)
			}
			if err = cfg.Parse(data); err != nil {
				fmt.Println(err)
				os.Exit(1)
			}
		}
		cfg.Print()

		cluster := parallel.NewCluster(np)
		meshes := make([]*mesh.Mesh, np)
		scheds := make([]*distribute.Schedule, np)
		errs := make([]error, np)

		var wg sync.WaitGroup
		for r := 0; r < np; r++ {
			wg.Add(1)
			go func(r int) {
				defer wg.Done()
				b := distribute.NewBuilder(cluster.Comm(r), cfg)
				meshes[r], scheds[r], errs[r] = b.Build(channelInput(K, np, r, periodic))
			}(r)
		}
		wg.Wait()

		for r := 0; r < np; r++ {
			if errs[r] != nil {
				fmt.Printf("rank %d: %v\n", r, errs[r])
				os.Exit(1)
			}
		}
		for r := 0; r < np; r++ {
			m, s := meshes[r], scheds[r]
			fmt.Printf("rank %d: %d owned, %d halo, %d points, %d schedule peers\n",
				r, m.NumOwned, m.NumHalo(), len(m.Points), len(s.Peers))
			for i, p := range s.Peers {
				fmt.Printf("  peer %d: recv %d DOFs, send %d DOFs\n",
					p, len(s.Recv[i]), len(s.Send[i]))
			}
		}
	},
}

func init() {
	rootCmd.AddCommand(constructCmd)
	constructCmd.Flags().IntP("nelem", "K", 8, "Number of quad elements in the channel")
	constructCmd.Flags().IntP("nproc", "n", 2, "Number of in-process ranks")
	constructCmd.Flags().Bool("periodic", false, "Make the inlet/outlet pair periodic")
	constructCmd.Flags().String("markers", "", "YAML marker configuration overriding the built-in one")
	constructCmd.Flags().Bool("profile", false, "Write a CPU profile of the run")
}

// channelConfig names the two vertical boundaries of the channel and, when
// requested, pairs them periodically: the transform of each marker maps the
// donor elements behind the opposite boundary onto its own side.
func channelConfig(K int, periodic bool) *config.Config {
	cfg := &config.Config{
		Title: "Quad channel",
		Markers: []config.MarkerSpec{
			{Tag: "inlet"},
			{Tag: "outlet"},
		},
	}
	if periodic {
		cfg.Markers[0].Periodic = &config.PeriodicSpec{
			Translation: [3]float64{float64(K), 0, 0},
		}
		cfg.Markers[1].Periodic = &config.PeriodicSpec{
			Translation: [3]float64{-float64(K), 0, 0},
		}
	}
	return cfg
}

// channelInput builds rank r's share of a row of K unit quads, block
// partitioned over np ranks. Node j*(K+1)+i sits at (i, j); element e spans
// x in [e, e+1] with the tensor node ordering. The element coloring equals
// the input blocks, so phase one only moves elements rank-locally while the
// halo layer still crosses the block seams.
func channelInput(K, np, r int, periodic bool) *distribute.InputMesh {
	offsets := make([]uint64, np+1)
	for p := 0; p <= np; p++ {
		offsets[p] = uint64(p * K / np)
	}
	lo, hi := int(offsets[r]), int(offsets[r+1])

	in := &distribute.InputMesh{
		Dim:              2,
		ElemOffsets:      offsets,
		GlobalPointCount: uint64(2 * (K + 1)),
		Boundaries:       make([]distribute.InputBoundary, 2),
	}

	nodeSet := make(map[uint64][3]float64)
	addNode := func(gid uint64) {
		i := int(gid) % (K + 1)
		j := int(gid) / (K + 1)
		nodeSet[gid] = [3]float64{float64(i), float64(j), 0}
	}

	for e := lo; e < hi; e++ {
		nodes := []uint64{
			uint64(e), uint64(e + 1),
			uint64(K + 1 + e), uint64(K + 1 + e + 1),
		}
		for _, n := range nodes {
			addNode(n)
		}

		// Faces: left, right, bottom, top.
		neighbors := []int64{int64(e - 1), int64(e + 1), -1, -1}
		donors := []mesh.PeriodicIndex{
			mesh.NoPeriodic(), mesh.NoPeriodic(),
			mesh.NoPeriodic(), mesh.NoPeriodic(),
		}
		if e == 0 {
			neighbors[0] = -1
			if periodic {
				neighbors[0] = int64(K - 1)
				donors[0] = mesh.Periodic(0)
			}
		}
		if e == K-1 {
			neighbors[1] = -1
			if periodic {
				neighbors[1] = 0
				donors[1] = mesh.Periodic(1)
			}
		}

		in.Elements = append(in.Elements, distribute.InputElement{
			GlobalID:            uint64(e),
			Color:               sliceRank(offsets, uint64(e)),
			Type:                mesh.Quad,
			PolyGrid:            1,
			PolySol:             1,
			NDOFsGrid:           4,
			NDOFsSol:            4,
			Nodes:               nodes,
			Neighbors:           neighbors,
			FaceDonor:           donors,
			JacConstant:         true,
			JacFaceConstant:     []bool{true, true, true, true},
			OffsetDOFsSolGlobal: uint64(4 * e),
		})
	}

	for gid := range nodeSet {
		in.NodeIDs = append(in.NodeIDs, gid)
	}
	sort.Slice(in.NodeIDs, func(i, j int) bool { return in.NodeIDs[i] < in.NodeIDs[j] })
	for _, gid := range in.NodeIDs {
		c := nodeSet[gid]
		in.NodeCoords = append(in.NodeCoords, c[:])
	}

	if lo == 0 {
		in.Boundaries[0].Elements = append(in.Boundaries[0].Elements,
			distribute.InputSurface{
				Type:          mesh.Line,
				PolyGrid:      1,
				NDOFsGrid:     2,
				Nodes:         []uint64{0, uint64(K + 1)},
				DomainElement: 0,
				GlobalID:      0,
			})
	}
	if hi == K {
		in.Boundaries[1].Elements = append(in.Boundaries[1].Elements,
			distribute.InputSurface{
				Type:          mesh.Line,
				PolyGrid:      1,
				NDOFsGrid:     2,
				Nodes:         []uint64{uint64(K), uint64(2*K + 1)},
				DomainElement: uint64(K - 1),
				GlobalID:      1,
			})
	}

	return in
}

func sliceRank(offsets []uint64, gid uint64) int {
	for p := 0; p < len(offsets)-1; p++ {
		if gid < offsets[p+1] {
			return p
		}
	}
	return len(offsets) - 2
}
