package daq

import (
	"errors"
	"strconv"
	"strings"

	"github.com/mastercactapus/mimscan/machine"
)

// bannerPrefix starts the line printed by the bridge after power-up.
const bannerPrefix = "Bridge"

// acquisitionTarget addresses the acquisition task in stop and release.
const acquisitionTarget = "A"

func appendFloats(b []byte, v []float64) []byte {
	for i, f := range v {
		if i > 0 {
			b = append(b, ',')
		}
		b = strconv.AppendFloat(b, f, 'g', -1, 64)
	}
	return b
}

func channelTarget(ch machine.Channel) string { return strconv.Itoa(int(ch)) }

func formatWaveform(ch machine.Channel, w []float64) string {
	b := []byte("W" + channelTarget(ch) + " ")
	return string(appendFloats(b, w))
}

func formatVoltage(ch machine.Channel, v float64) string {
	return "V" + channelTarget(ch) + " " + strconv.FormatFloat(v, 'g', -1, 64)
}

func formatStart(samples int) string { return "A" + strconv.Itoa(samples) }

func formatStop(target string) string { return "S" + target }

func formatRelease(target string) string { return "R" + target }

func parseBatch(data string) ([]float64, error) {
	data = strings.TrimSpace(data)
	data = strings.TrimPrefix(data, "[")
	data = strings.TrimSuffix(data, "]")
	parts := strings.SplitN(data, ":", 2)
	if len(parts) != 2 || parts[0] != "B" {
		return nil, errors.New("unknown frame: " + data)
	}
	if parts[1] == "" {
		return nil, errors.New("empty batch")
	}

	vals := strings.Split(parts[1], ",")
	batch := make([]float64, len(vals))
	var err error
	for i, s := range vals {
		batch[i], err = strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, err
		}
	}
	return batch, nil
}
