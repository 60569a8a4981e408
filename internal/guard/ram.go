package guard

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// ReadRAMUsedPct parses /proc/meminfo for the fraction of system memory
// currently in use. Linux-only; no suitable third-party memory-stats
// library is wired elsewhere in this module, so this stays on the
// standard library rather than inventing a dependency nothing else uses.
func ReadRAMUsedPct() (float64, error) {
	f, err := os.Open("/proc/meminfo")
	if err != nil {
		return 0, err
	}
	defer f.Close()

	var totalKB, availableKB int64
	found := 0
	scanner := bufio.NewScanner(f)
	for scanner.Scan() && found < 2 {
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, "MemTotal:"):
			totalKB = parseMeminfoValue(line)
			found++
		case strings.HasPrefix(line, "MemAvailable:"):
			availableKB = parseMeminfoValue(line)
			found++
		}
	}
	if totalKB <= 0 {
		return 0, fmt.Errorf("could not parse MemTotal from /proc/meminfo")
	}
	usedKB := totalKB - availableKB
	return float64(usedKB) / float64(totalKB), nil
}

func parseMeminfoValue(line string) int64 {
	fields := strings.Fields(line)
	if len(fields) < 2 {
		return 0
	}
	n, _ := strconv.ParseInt(fields[1], 10, 64)
	return n
}
