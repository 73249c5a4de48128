package cmd

import (
	"fmt"
	"math"
	"os"

	"github.com/pkg/profile"
	"github.com/spf13/cobra"

	"github.com/czha/dgtree/config"
	"github.com/czha/dgtree/device"
	"github.com/czha/dgtree/solver"
)

// simCmd runs one simulation described by a YAML case file.
var simCmd = &cobra.Command{
	Use:   "sim",
	Short: "Run a simulation from a YAML case file",
	Long: `Run a simulation from a YAML case file, on the host pipeline or on an
OCCA device. Example case file:

########################################
Title: "Periodic advection"
Equation: advection1d
PolynomialOrder: 3
CFL: 0.4
FinalTime: 1.0
XMin: 0
XMax: 2
Kx: 8
PeriodicX: true
SpeedX: 1.5
InitType: sine
InitState: [1.0]
########################################
`,
	Run: func(cmd *cobra.Command, args []string) {
		m := &simModel{}
		var err error
		if m.CaseFile, err = cmd.Flags().GetString("caseFile"); err != nil {
			panic(err)
		}
		m.FinalTime, _ = cmd.Flags().GetFloat64("finalTime")
		m.UseDevice, _ = cmd.Flags().GetBool("device")
		m.DeviceProps, _ = cmd.Flags().GetString("deviceProps")
		m.Profile, _ = cmd.Flags().GetBool("profile")
		m.PrintSteps, _ = cmd.Flags().GetInt("printSteps")
		runSim(m)
	},
}

func init() {
	rootCmd.AddCommand(simCmd)
	simCmd.Flags().StringP("caseFile", "I", "", "YAML case file describing the simulation")
	simCmd.Flags().Float64("finalTime", 0, "override the case file's FinalTime")
	simCmd.Flags().Bool("device", false, "run the residual pipeline on an OCCA device")
	simCmd.Flags().String("deviceProps", "", `OCCA device properties, e.g. {"mode": "CUDA", "device_id": 0}`)
	simCmd.Flags().Bool("profile", false, "write a CPU profile to the working directory")
	simCmd.Flags().IntP("printSteps", "p", 50, "print a status line every N steps")
}

type simModel struct {
	CaseFile    string
	FinalTime   float64
	UseDevice   bool
	DeviceProps string
	Profile     bool
	PrintSteps  int
}

func runSim(m *simModel) {
	if m.CaseFile == "" {
		fmt.Println("error: must supply a case file (-I, --caseFile)")
		os.Exit(1)
	}
	data, err := os.ReadFile(m.CaseFile)
	if err != nil {
		fmt.Printf("error: %s\n", err.Error())
		os.Exit(1)
	}
	params := &config.Parameters{}
	if err = params.Parse(data); err != nil {
		fmt.Printf("error: %s\n", err.Error())
		os.Exit(1)
	}
	if m.FinalTime > 0 {
		params.FinalTime = m.FinalTime
	}

	s, U, err := params.Build()
	if err != nil {
		fmt.Printf("error: %s\n", err.Error())
		os.Exit(1)
	}
	params.Print()
	fmt.Printf("[%d]\t\t\t= Elements\n", s.Mesh.K)
	fmt.Printf("[%d]\t\t\t= Mortar faces\n", len(s.Mesh.Mortars))

	if m.Profile {
		defer profile.Start(profile.CPUProfile, profile.ProfilePath(".")).Stop()
	}

	pipe := solver.Residualer(s)
	if m.UseDevice {
		dev, err := device.NewDevice(m.DeviceProps)
		if err != nil {
			fmt.Printf("error: %s\n", err.Error())
			os.Exit(1)
		}
		fmt.Printf("Created %s device\n", dev.Mode())
		p, err := device.NewPipeline(dev, s)
		if err != nil {
			fmt.Printf("error: %s\n", err.Error())
			os.Exit(1)
		}
		defer p.Free()
		pipe = p
	}

	dt := s.EstimateDt(U, params.CFL)
	if dt <= 0 || math.IsInf(dt, 0) || dt > params.FinalTime {
		dt = params.FinalTime
	}
	fmt.Printf("%8.5e\t= dt (CFL %.3f)\n", dt, params.CFL)

	it := solver.NewIntegrator(pipe)
	err = it.Run(U, params.FinalTime, dt, func(step int, t float64) {
		if m.PrintSteps > 0 && step%m.PrintSteps == 0 {
			lo, hi := fieldRange(s, U, 0)
			fmt.Printf("step %6d  t=%10.5f  min/max[0] = %10.5f / %10.5f\n", step, t, lo, hi)
		}
	})
	if err != nil {
		fmt.Printf("error: %s\n", err.Error())
		os.Exit(1)
	}

	for v := 0; v < s.NVar; v++ {
		lo, hi := fieldRange(s, U, v)
		fmt.Printf("final t=%.5f  var %d  min/max = %10.6f / %10.6f\n", params.FinalTime, v, lo, hi)
	}
}

func fieldRange(s *solver.Solver, U []float64, v int) (lo, hi float64) {
	lo, hi = math.Inf(1), math.Inf(-1)
	for k := 0; k < s.Mesh.K; k++ {
		for node := 0; node < s.Npe; node++ {
			val := U[s.Idx(k, v, node)]
			if val < lo {
				lo = val
			}
			if val > hi {
				hi = val
			}
		}
	}
	return
}
