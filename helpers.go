package main

import (
	"bytes"
	"fmt"
	"os"
	"strings"

	"github.com/flmcompanion/flmcompanion/catalog"
	"github.com/flmcompanion/flmcompanion/config"
	"github.com/flmcompanion/flmcompanion/hardware"
	"github.com/flmcompanion/flmcompanion/logging"
	"github.com/flmcompanion/flmcompanion/styles"
	"github.com/olekukonko/tablewriter"
	"golang.org/x/term"
)

// truncate ensures the string fits within the specified width
func truncate(text string, width int) string {
	if width <= 3 || len(text) <= width {
		return text
	}
	return text[:width-3] + "..."
}

func isTerminal() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}

func terminalSize() (int, int) {
	width, height, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil {
		logging.DebugLogger.Debug().Msgf("Error getting terminal size: %v", err)
		return 80, 24
	}
	return width, height
}

func newTable(buf *bytes.Buffer, header []string, colour bool) *tablewriter.Table {
	tw := tablewriter.NewWriter(buf)
	tw.SetHeader(header)
	tw.SetAutoWrapText(false)
	tw.SetBorders(tablewriter.Border{Left: true, Top: false, Right: true, Bottom: false})
	tw.SetCenterSeparator("|")
	tw.SetColumnSeparator("|")
	tw.SetRowSeparator("-")
	if colour {
		headerColours := make([]tablewriter.Colors, len(header))
		for i := range headerColours {
			headerColours[i] = tablewriter.Colors{tablewriter.FgHiWhiteColor}
		}
		tw.SetHeaderColor(headerColours...)
	}
	return tw
}

// capabilities lists what a model can do beyond plain chat.
func capabilities(m catalog.Model) string {
	var caps []string
	if m.IsThink {
		caps = append(caps, "think")
	}
	if m.IsVLM {
		caps = append(caps, "vision")
	}
	if m.IsEmbedding {
		caps = append(caps, "embed")
	}
	if m.IsAudio {
		caps = append(caps, "audio")
	}
	return strings.Join(caps, ",")
}

func contextLabel(n int) string {
	if n <= 0 {
		return "-"
	}
	if n%1024 == 0 {
		return fmt.Sprintf("%dk", n/1024)
	}
	return fmt.Sprintf("%d", n)
}

// formatModels renders models as a table. With colour set, sizes and
// quantisation levels are coloured by the current theme.
func formatModels(models []catalog.Model, colour bool) string {
	if len(models) == 0 {
		return "No models available to display.\n"
	}
	var buf bytes.Buffer
	tw := newTable(&buf, []string{"Name", "Size", "Quant", "Family", "Context", "Modified", "Capabilities"}, colour)
	for _, m := range models {
		size, quant := m.Size, m.Quantization
		if colour {
			size = styles.SizeStyle(float64(m.RealSize) / (1 << 30)).Render(size)
			if quant != "" {
				quant = styles.QuantStyle(quant).Render(quant)
			}
		}
		tw.Append([]string{
			truncate(m.Name, 48),
			size,
			quant,
			m.Family,
			contextLabel(m.ContextLength),
			m.Modified,
			capabilities(m),
		})
	}
	tw.Render()
	return buf.String()
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}

// describeOptions summarises the options a server is started with.
func describeOptions(o config.ServerOptions) string {
	parts := []string{
		"pmode=" + string(o.PMode),
		"ctx=" + contextLabel(o.CtxLen),
		fmt.Sprintf("port=%d", o.Port),
		"asr=" + onOff(o.ASR),
		"embed=" + onOff(o.Embed),
	}
	if o.Host != "" {
		parts = append(parts, "host="+o.Host)
	}
	return strings.Join(parts, " ")
}

// describePatch lists only the fields a preset overrides.
func describePatch(p config.ServerOptionsPatch) string {
	var parts []string
	if p.PMode != nil {
		parts = append(parts, "pmode="+string(*p.PMode))
	}
	if p.CtxLen != nil {
		parts = append(parts, "ctx="+contextLabel(*p.CtxLen))
	}
	if p.Port != nil {
		parts = append(parts, fmt.Sprintf("port=%d", *p.Port))
	}
	if p.Host != nil {
		parts = append(parts, "host="+*p.Host)
	}
	if p.ASR != nil {
		parts = append(parts, "asr="+onOff(*p.ASR))
	}
	if p.Embed != nil {
		parts = append(parts, "embed="+onOff(*p.Embed))
	}
	if p.Socket != nil {
		parts = append(parts, fmt.Sprintf("socket=%d", *p.Socket))
	}
	if p.QLen != nil {
		parts = append(parts, fmt.Sprintf("qlen=%d", *p.QLen))
	}
	if p.CORS != nil {
		parts = append(parts, "cors="+onOff(*p.CORS))
	}
	if p.Preemption != nil {
		parts = append(parts, "preemption="+onOff(*p.Preemption))
	}
	if len(parts) == 0 {
		return "-"
	}
	return strings.Join(parts, " ")
}

func formatPresets(presets []config.ServerPreset, colour bool) string {
	var buf bytes.Buffer
	tw := newTable(&buf, []string{"ID", "Name", "Model", "Options"}, colour)
	for _, p := range presets {
		model := p.Model
		if model == "" {
			model = "-"
		}
		tw.Append([]string{p.ID, p.DisplayName(config.EnglishName), model, describePatch(p.Options)})
	}
	tw.Render()
	return buf.String()
}

func formatHardware(info hardware.Info, colour bool) string {
	var buf bytes.Buffer
	tw := newTable(&buf, []string{"Component", "Value"}, colour)
	tw.AppendBulk([][]string{
		{"CPU", info.CPU},
		{"RAM", info.RAM},
		{"Shared memory", info.SharedMemory},
		{"NPU", info.NPUName},
		{"NPU driver", info.NPUDriver},
	})
	tw.Render()
	return buf.String()
}

func formatStats(s hardware.Stats, colour bool) string {
	var buf bytes.Buffer
	tw := newTable(&buf, []string{"Metric", "Value"}, colour)
	for _, row := range statsRows(s) {
		tw.Append(row)
	}
	tw.Render()
	return buf.String()
}
