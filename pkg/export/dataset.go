package export

import "fmt"

// Dataset defines tabular export content.
type Dataset struct {
	Headers []string
	Rows    []map[string]string
	// Weights optionally sizes columns relative to each other. Missing
	// entries count as 1.
	Weights []float64
}

// Table is a captioned dataset inside a document.
type Table struct {
	Caption string
	Data    Dataset
}

// Document is a titled set of tables with free-form summary lines, rendered
// as pages by the PDF exporter and as sheets by the XLSX exporter.
type Document struct {
	Title     string
	Summary   []string
	Tables    []Table
	Landscape bool
}

func (d Dataset) validate(kind string) error {
	if len(d.Headers) == 0 {
		return fmt.Errorf("%s requires at least one header", kind)
	}
	return nil
}

func (d Dataset) record(row map[string]string) []string {
	record := make([]string, len(d.Headers))
	for i, header := range d.Headers {
		record[i] = row[header]
	}
	return record
}

func (d Dataset) widths(total float64) []float64 {
	weights := make([]float64, len(d.Headers))
	sum := 0.0
	for i := range weights {
		weights[i] = 1
		if i < len(d.Weights) && d.Weights[i] > 0 {
			weights[i] = d.Weights[i]
		}
		sum += weights[i]
	}
	for i := range weights {
		weights[i] = total * weights[i] / sum
	}
	return weights
}
