package dqmap

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"

	candle "github.com/samsamfire/gocandle"
)

const leadingColumns = 3

// Expected csv header for nCols velocity breakpoints
func Header(nCols int) []string {
	header := []string{"idiq", "voltage", "torque"}
	for i := 0; i < nCols; i++ {
		header = append(header, "rpm"+strconv.Itoa(i))
	}
	return header
}

// Parse a map exported as csv. Rows are ordered by axis, then voltage
// then torque, 2*nVoltage*nRows lines after the header. The voltage and
// torque columns give the breakpoint of the row. Velocity breakpoints are
// not part of the file and are left to the caller.
func ParseCSV(r io.Reader, nVoltage, nRows, nCols int) (*Map, error) {
	m, err := New(nVoltage, nRows, nCols)
	if err != nil {
		return nil, err
	}
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = leadingColumns + nCols
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("%w : csv header : %v", candle.ErrMalformedPayload, err)
	}
	for i, name := range Header(nCols) {
		if header[i] != name {
			return nil, fmt.Errorf("%w : csv column %v is %q, expected %q", candle.ErrMalformedPayload, i, header[i], name)
		}
	}

	line := 1
	for axis := AxisD; axis < axisCount; axis++ {
		for voltage := 0; voltage < nVoltage; voltage++ {
			for row := 0; row < nRows; row++ {
				line++
				record, err := reader.Read()
				if errors.Is(err, io.EOF) {
					return nil, fmt.Errorf("%w : csv ends at line %v, expected %v rows", candle.ErrMalformedPayload, line, m.RowCount())
				}
				if err != nil {
					return nil, fmt.Errorf("%w : %v", candle.ErrMalformedPayload, err)
				}
				values, err := parseFloats(record)
				if err != nil {
					return nil, fmt.Errorf("%w : csv line %v : %v", candle.ErrMalformedPayload, line, err)
				}
				if Axis(values[0]) != axis {
					return nil, fmt.Errorf("%w : csv line %v belongs to axis %v, expected %v", candle.ErrMalformedPayload, line, values[0], axis)
				}
				m.Voltages[voltage] = values[1]
				m.Torques[row] = values[2]
				copy(m.rows[axis][voltage][row], values[leadingColumns:])
			}
		}
	}
	if _, err := reader.Read(); !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w : csv has more than %v rows", candle.ErrMalformedPayload, m.RowCount())
	}
	return m, nil
}

func parseFloats(record []string) ([]float32, error) {
	values := make([]float32, len(record))
	for i, field := range record {
		value, err := strconv.ParseFloat(field, 32)
		if err != nil {
			return nil, err
		}
		values[i] = float32(value)
	}
	return values, nil
}

// Write m in the format read by [ParseCSV]
func WriteCSV(w io.Writer, m *Map) error {
	writer := csv.NewWriter(w)
	nVoltage, nRows, nCols := m.Dimensions()
	if err := writer.Write(Header(nCols)); err != nil {
		return err
	}
	format := func(v float32) string {
		return strconv.FormatFloat(float64(v), 'g', -1, 32)
	}
	for axis := AxisD; axis < axisCount; axis++ {
		for voltage := 0; voltage < nVoltage; voltage++ {
			for row := 0; row < nRows; row++ {
				record := []string{strconv.Itoa(int(axis)), format(m.Voltages[voltage]), format(m.Torques[row])}
				for _, v := range m.rows[axis][voltage][row] {
					record = append(record, format(v))
				}
				if err := writer.Write(record); err != nil {
					return err
				}
			}
		}
	}
	writer.Flush()
	return writer.Error()
}
