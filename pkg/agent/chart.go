package agent

import (
	"fmt"
	"math"
	"strings"

	"github.com/xhad/insight/internal/errs"
	"github.com/xhad/insight/internal/models"
)

const histogramBins = 10

// BuildChart derives a chart specification from a plot request. Columns named
// in the query are bound first; the rest default to the first suitable
// column. Series values are computed from the dataset.
func BuildChart(ds *models.TabularDataset, query string) (*models.ChartSpec, string, error) {
	tokens := tokenize(query)
	mentions := columnMentions(ds, tokens)
	chartType := chartTypeFor(maskMentions(tokens, mentions))

	mentioned := make([]int, 0, len(mentions))
	for _, m := range mentions {
		mentioned = append(mentioned, m.column)
	}

	switch chartType {
	case models.ChartHistogram:
		return histogram(ds, mentioned)
	case models.ChartScatter:
		return scatter(ds, mentioned)
	default:
		return grouped(ds, chartType, mentioned)
	}
}

// pick returns the first candidate column accepted by ok and not in used.
func pick(candidates []int, used map[int]bool, ok func(int) bool) int {
	for _, c := range candidates {
		if !used[c] && ok(c) {
			return c
		}
	}
	return -1
}

func allColumns(ds *models.TabularDataset) []int {
	cols := make([]int, len(ds.Columns))
	for i := range cols {
		cols[i] = i
	}
	return cols
}

func grouped(ds *models.TabularDataset, chartType models.ChartType, mentioned []int) (*models.ChartSpec, string, error) {
	numeric := ds.IsNumericColumn
	anyColumn := func(int) bool { return true }
	nonNumeric := func(i int) bool { return !ds.IsNumericColumn(i) }

	y := pick(mentioned, nil, numeric)
	if y < 0 {
		y = pick(allColumns(ds), nil, numeric)
	}
	if y < 0 {
		return nil, "", errs.New(errs.ColumnNotFound, "%s chart needs a numeric column and the dataset has none", chartType)
	}

	used := map[int]bool{y: true}
	x := pick(mentioned, used, anyColumn)
	if x < 0 {
		x = pick(allColumns(ds), used, nonNumeric)
	}
	if x < 0 {
		x = pick(allColumns(ds), used, anyColumn)
	}
	if x < 0 {
		return nil, "", errs.New(errs.ColumnNotFound, "%s chart needs a column for the x axis", chartType)
	}

	var (
		order  []string
		totals = make(map[string]float64)
	)
	for _, row := range ds.Rows {
		if row[y].Kind != models.CellNumber {
			continue
		}
		label := strings.TrimSpace(row[x].Raw)
		if label == "" {
			label = "(blank)"
		}
		if _, seen := totals[label]; !seen {
			order = append(order, label)
		}
		totals[label] += row[y].Number
	}

	points := make([]models.ChartPoint, 0, len(order))
	for _, label := range order {
		points = append(points, models.ChartPoint{Label: label, Value: totals[label]})
	}

	xName, yName := ds.Columns[x], ds.Columns[y]
	spec := &models.ChartSpec{
		Type:        chartType,
		Title:       fmt.Sprintf("%s by %s", yName, xName),
		X:           xName,
		Y:           yName,
		Aggregation: string(OpSum),
		Points:      points,
	}
	caption := fmt.Sprintf("%s chart of total %s by %s (%d groups).",
		titleCase(string(chartType)), yName, xName, len(points))
	return spec, caption, nil
}

// scatter reads "a vs b" as a on the y axis against b on the x axis.
func scatter(ds *models.TabularDataset, mentioned []int) (*models.ChartSpec, string, error) {
	numeric := ds.IsNumericColumn

	used := map[int]bool{}
	y := pick(mentioned, used, numeric)
	if y < 0 {
		y = pick(allColumns(ds), used, numeric)
	}
	if y >= 0 {
		used[y] = true
	}
	x := pick(mentioned, used, numeric)
	if x < 0 {
		x = pick(allColumns(ds), used, numeric)
	}
	if x < 0 || y < 0 {
		return nil, "", errs.New(errs.ColumnNotFound, "scatter chart needs two numeric columns")
	}

	var points []models.ChartPoint
	for _, row := range ds.Rows {
		if row[x].Kind != models.CellNumber || row[y].Kind != models.CellNumber {
			continue
		}
		points = append(points, models.ChartPoint{
			Label: FormatValue(row[x].Number),
			X:     row[x].Number,
			Value: row[y].Number,
		})
	}

	xName, yName := ds.Columns[x], ds.Columns[y]
	spec := &models.ChartSpec{
		Type:   models.ChartScatter,
		Title:  fmt.Sprintf("%s vs %s", yName, xName),
		X:      xName,
		Y:      yName,
		Points: points,
	}
	caption := fmt.Sprintf("Scatter chart of %s against %s (%d points).", yName, xName, len(points))
	return spec, caption, nil
}

func histogram(ds *models.TabularDataset, mentioned []int) (*models.ChartSpec, string, error) {
	numeric := ds.IsNumericColumn

	x := pick(mentioned, nil, numeric)
	if x < 0 {
		x = pick(allColumns(ds), nil, numeric)
	}
	if x < 0 {
		return nil, "", errs.New(errs.ColumnNotFound, "histogram needs a numeric column and the dataset has none")
	}

	var values []float64
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, row := range ds.Rows {
		if row[x].Kind != models.CellNumber {
			continue
		}
		v := row[x].Number
		values = append(values, v)
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}

	bins := histogramBins
	if hi == lo {
		bins = 1
	}
	width := (hi - lo) / float64(bins)
	counts := make([]float64, bins)
	for _, v := range values {
		i := bins - 1
		if width > 0 {
			i = int((v - lo) / width)
			if i >= bins {
				i = bins - 1
			}
		}
		counts[i]++
	}

	points := make([]models.ChartPoint, bins)
	for i := range points {
		start := lo + float64(i)*width
		end := start + width
		if i == bins-1 {
			end = hi
		}
		points[i] = models.ChartPoint{
			Label: fmt.Sprintf("%s to %s", FormatValue(start), FormatValue(end)),
			X:     start,
			Value: counts[i],
		}
	}

	xName := ds.Columns[x]
	spec := &models.ChartSpec{
		Type:        models.ChartHistogram,
		Title:       fmt.Sprintf("Distribution of %s", xName),
		X:           xName,
		Aggregation: string(OpCount),
		Points:      points,
	}
	caption := fmt.Sprintf("Histogram of %s over %d values in %d bins.", xName, len(values), bins)
	return spec, caption, nil
}

func titleCase(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
