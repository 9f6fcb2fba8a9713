package main

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"firmdbg/arch"
	"firmdbg/session"
)

var (
	flagName        string
	flagMachine     string
	flagCPU         string
	flagGdbPath     string
	flagQemuArm     string
	flagQemuRiscv32 string
	flagQemuRiscv64 string
	flagVerbose     bool
)

var rootCmd = &cobra.Command{
	Use:           "firmdbg",
	Short:         "Debug embedded firmware under QEMU with crash decoding",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var debugCmd = &cobra.Command{
	Use:   "debug <firmware.elf>",
	Short: "Launch firmware under QEMU and open an interactive debug shell",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if flagVerbose {
			logrus.SetLevel(logrus.DebugLevel)
		} else {
			logrus.SetLevel(logrus.WarnLevel)
		}

		cfg := session.ConfigFromEnv()
		if flagGdbPath != "" {
			cfg.GdbPath = flagGdbPath
		}
		if flagQemuArm != "" {
			cfg.QemuArmPath = flagQemuArm
		}
		if flagQemuRiscv32 != "" {
			cfg.QemuRiscv32Path = flagQemuRiscv32
		}
		if flagQemuRiscv64 != "" {
			cfg.QemuRiscv64Path = flagQemuRiscv64
		}

		mgr := session.NewManager(cfg)
		defer mgr.StopAll()

		if _, err := mgr.StartSession(flagName, args[0], flagMachine, flagCPU); err != nil {
			return err
		}

		NewShell(mgr).Interactive()
		return nil
	},
}

var archsCmd = &cobra.Command{
	Use:   "archs",
	Short: "List supported target architectures",
	Run: func(cmd *cobra.Command, args []string) {
		for _, name := range arch.List() {
			fmt.Println(name)
		}
	},
}

func init() {
	debugCmd.Flags().StringVar(&flagName, "name", "", "session name (default: firmware filename)")
	debugCmd.Flags().StringVar(&flagMachine, "machine", "", "QEMU machine type (default lm3s6965evb)")
	debugCmd.Flags().StringVar(&flagCPU, "cpu", "", "QEMU CPU model (default cortex-m3)")
	debugCmd.Flags().StringVar(&flagGdbPath, "gdb-path", "", "gdb binary (default gdb-multiarch)")
	debugCmd.Flags().StringVar(&flagQemuArm, "qemu-arm-path", "", "qemu-system-arm binary")
	debugCmd.Flags().StringVar(&flagQemuRiscv32, "qemu-riscv32-path", "", "qemu-system-riscv32 binary")
	debugCmd.Flags().StringVar(&flagQemuRiscv64, "qemu-riscv64-path", "", "qemu-system-riscv64 binary")
	debugCmd.Flags().BoolVarP(&flagVerbose, "verbose", "v", false, "debug logging")

	rootCmd.AddCommand(debugCmd)
	rootCmd.AddCommand(archsCmd)
}

func main() {
	logrus.SetFormatter(&logrus.TextFormatter{DisableTimestamp: true})
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
