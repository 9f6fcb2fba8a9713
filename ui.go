package main

import (
	"encoding/binary"
	"fmt"
	"os"
	"sort"
	"strings"

	"golang.org/x/term"
)

const (
	ColorReset  = "\033[0m"
	ColorRed    = "\033[31m"
	ColorGreen  = "\033[32m"
	ColorYellow = "\033[33m"
	ColorBlue   = "\033[34m"
	ColorPurple = "\033[35m"
	ColorCyan   = "\033[36m"
	ColorWhite  = "\033[37m"
	ColorBold   = "\033[1m"
)

func LogError(msg string, a ...interface{}) {
	fmt.Printf("%s[ERROR]%s %s\n", ColorRed, ColorReset, fmt.Sprintf(msg, a...))
}

func LogWarn(msg string, a ...interface{}) {
	fmt.Printf("%s[WARN]%s %s\n", ColorYellow, ColorReset, fmt.Sprintf(msg, a...))
}

func Printf(msg string, a ...interface{}) {
	msg = strings.ReplaceAll(msg, "%d", "\033[36m%d\033[0m")
	msg = strings.ReplaceAll(msg, "0x%08x", "\033[36m0x%08x\033[0m")
	msg = strings.ReplaceAll(msg, "%08x", "\033[36m%08x\033[0m")
	msg = strings.ReplaceAll(msg, "%x", "\033[36m%x\033[0m")
	msg = strings.ReplaceAll(msg, "%s", "\033[32m%s\033[0m")
	fmt.Printf(msg, a...)
}

func hLine(msg string) {
	if term.IsTerminal(int(os.Stdout.Fd())) {
		w, _, err := term.GetSize(int(os.Stdout.Fd()))
		if err == nil && w > 0 {
			fmt.Printf(strings.Repeat("-", (w-len(msg)-2)/2) + "[" + msg + "]" + strings.Repeat("-", (w-len(msg)-2)/2) + "\n")
			return
		}
	}
	fmt.Printf("[" + msg + "]\n")
}

// dumpHex prints data xxd-style. width is the element size in bytes:
// 1 for a byte dump, 4 for word columns.
func dumpHex(addr uint64, data []byte, width int) {
	for i := 0; i < len(data); i += 16 {
		fmt.Printf("%08x: ", addr+uint64(i))

		switch width {
		case 4:
			for j := 0; j < 16; j += 4 {
				if len(data)-(i+j) >= 4 {
					fmt.Printf("0x%08x ", binary.LittleEndian.Uint32(data[i+j:i+j+4]))
				} else {
					fmt.Printf("           ")
				}
			}
		default:
			for j := 0; j < 16; j++ {
				if i+j < len(data) {
					fmt.Printf("%02x ", data[i+j])
				} else {
					fmt.Printf("   ")
				}
			}
		}

		fmt.Printf(" |")
		for j := 0; j < 16 && i+j < len(data); j++ {
			b := data[i+j]
			if b >= 32 && b <= 126 {
				fmt.Printf("%c", b)
			} else {
				fmt.Printf(".")
			}
		}
		fmt.Printf("|\n")
	}
}

// printMap renders nested analysis results with sorted keys.
func printMap(m map[string]any, indent int) {
	pad := strings.Repeat("  ", indent)
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		switch v := m[k].(type) {
		case map[string]any:
			fmt.Printf("%s%s%s%s:\n", pad, ColorBold, k, ColorReset)
			printMap(v, indent+1)
		case map[string]string:
			fmt.Printf("%s%s%s%s:\n", pad, ColorBold, k, ColorReset)
			sub := make([]string, 0, len(v))
			for sk := range v {
				sub = append(sub, sk)
			}
			sort.Strings(sub)
			for _, sk := range sub {
				fmt.Printf("%s  %s: %s%s%s\n", pad, sk, ColorCyan, v[sk], ColorReset)
			}
		case []map[string]any:
			fmt.Printf("%s%s%s%s:\n", pad, ColorBold, k, ColorReset)
			for i, entry := range v {
				fmt.Printf("%s  [%d]\n", pad, i)
				printMap(entry, indent+2)
			}
		case []string:
			fmt.Printf("%s%s%s%s: %s\n", pad, ColorBold, k, ColorReset, strings.Join(v, ", "))
		case nil:
			fmt.Printf("%s%s: -\n", pad, k)
		default:
			fmt.Printf("%s%s: %s%v%s\n", pad, k, ColorCyan, v, ColorReset)
		}
	}
}
