// scanviz renders a JSON-lines point cloud dump (produced by the simulator's
// -dump flag) into a self-contained HTML scatter plot, top-down XY colored by
// height.
package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"fmt"
	"math"
	"os"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/signalsfoundry/lidar-simulator/model"
)

func main() {
	input := flag.String("input", "clouds.jsonl", "JSON-lines cloud dump to read")
	output := flag.String("output", "scan.html", "HTML file to write")
	sensor := flag.String("sensor", "", "only plot clouds from this sensor (empty plots all)")
	maxPoints := flag.Int("max-points", 20000, "subsample above this many points")
	lastOnly := flag.Bool("last", true, "plot only the last matching cloud per sensor")
	flag.Parse()

	clouds, err := readClouds(*input, *sensor, *lastOnly)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if len(clouds) == 0 {
		fmt.Fprintln(os.Stderr, "no matching clouds in", *input)
		os.Exit(1)
	}

	if err := render(clouds, *output, *maxPoints); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	fmt.Printf("wrote %s (%d cloud(s))\n", *output, len(clouds))
}

func readClouds(path, sensor string, lastOnly bool) ([]*model.PointCloud, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	var clouds []*model.PointCloud
	latest := map[string]*model.PointCloud{}
	var order []string

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 1<<20), 64<<20)
	for sc.Scan() {
		line := sc.Bytes()
		if len(line) == 0 {
			continue
		}
		var c model.PointCloud
		if err := json.Unmarshal(line, &c); err != nil {
			return nil, fmt.Errorf("decode %s: %w", path, err)
		}
		if sensor != "" && c.Sensor != sensor {
			continue
		}
		if lastOnly {
			if _, seen := latest[c.Sensor]; !seen {
				order = append(order, c.Sensor)
			}
			latest[c.Sensor] = &c
		} else {
			cc := c
			clouds = append(clouds, &cc)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	if lastOnly {
		for _, name := range order {
			clouds = append(clouds, latest[name])
		}
	}
	return clouds, nil
}

func render(clouds []*model.PointCloud, output string, maxPoints int) error {
	total := 0
	for _, c := range clouds {
		total += len(c.Points)
	}
	stride := 1
	if total > maxPoints {
		stride = int(math.Ceil(float64(total) / float64(maxPoints)))
	}

	maxAbs := 0.0
	minZ, maxZ := math.Inf(1), math.Inf(-1)
	series := map[string][]opts.ScatterData{}
	var names []string
	plotted := 0
	for _, c := range clouds {
		if _, ok := series[c.Sensor]; !ok {
			names = append(names, c.Sensor)
		}
		for i := 0; i < len(c.Points); i += stride {
			p := c.Points[i]
			if !p.Valid {
				continue
			}
			if a := math.Max(math.Abs(p.X), math.Abs(p.Y)); a > maxAbs {
				maxAbs = a
			}
			minZ = math.Min(minZ, p.Z)
			maxZ = math.Max(maxZ, p.Z)
			series[c.Sensor] = append(series[c.Sensor],
				opts.ScatterData{Value: []interface{}{p.X, p.Y, p.Z}})
			plotted++
		}
	}
	if plotted == 0 {
		return fmt.Errorf("no valid points to plot")
	}
	if maxZ <= minZ {
		maxZ = minZ + 1
	}

	// Square plot with symmetric ranges so the geometry is not distorted.
	pad := maxAbs * 1.05
	if pad == 0 {
		pad = 1
	}

	scatter := charts.NewScatter()
	scatter.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Lidar Scan (Top-Down)", Theme: "dark", Width: "900px", Height: "900px"}),
		charts.WithTitleOpts(opts.Title{Title: "Lidar Scan", Subtitle: fmt.Sprintf("points=%d stride=%d", plotted, stride)}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Min: -pad, Max: pad, Name: "X (m)", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Min: -pad, Max: pad, Name: "Y (m)", NameLocation: "middle", NameGap: 30}),
		charts.WithVisualMapOpts(opts.VisualMap{
			Show:       opts.Bool(true),
			Calculable: opts.Bool(true),
			Min:        float32(minZ),
			Max:        float32(maxZ),
			Dimension:  "2",
			InRange:    &opts.VisualMapInRange{Color: []string{"#440154", "#482777", "#3e4989", "#31688e", "#26828e", "#1f9e89", "#35b779", "#6ece58", "#b5de2b", "#fde725"}},
		}),
	)
	for _, name := range names {
		scatter.AddSeries(name, series[name], charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 3}))
	}

	out, err := os.Create(output)
	if err != nil {
		return fmt.Errorf("create %s: %w", output, err)
	}
	defer out.Close()
	return scatter.Render(out)
}
