//
// SPDX-License-Identifier: GPL-3.0-or-later
//
// Copyright (C) 2025 Aaron Mathis aaron.mathis@gmail.com
//
// This file is part of flowetl.
//
// flowetl is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// flowetl is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with flowetl. If not, see https://www.gnu.org/licenses/.

package readers

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aaronlmathis/flowetl/core"
)

func TestJSONParser_Parse(t *testing.T) {
	parser := NewJSONParser()

	tests := []struct {
		name     string
		line     string
		expected core.Record
	}{
		{
			name: "pmacct flow",
			line: `{"ip_src":"10.0.0.1","port_src":443,"proto":"tcp","bytes":1500,"packets":3}`,
			expected: core.Record{
				"ip_src": "10.0.0.1", "port_src": int64(443), "proto": "tcp",
				"bytes": int64(1500), "packets": int64(3),
			},
		},
		{
			name:     "floats bools and null",
			line:     `{"ratio":0.5,"sampled":true,"tag":null}`,
			expected: core.Record{"ratio": 0.5, "sampled": true, "tag": nil},
		},
		{
			name:     "nested objects flatten",
			line:     `{"src":{"ip":"10.0.0.1","geo":{"cc":"DE"}},"bytes":1}`,
			expected: core.Record{"src.ip": "10.0.0.1", "src.geo.cc": "DE", "bytes": int64(1)},
		},
		{
			name:     "arrays stay compact JSON",
			line:     `{"as_path":[ 65001, 65002 ]}`,
			expected: core.Record{"as_path": "[65001,65002]"},
		},
		{
			name:     "empty object",
			line:     `{}`,
			expected: core.Record{},
		},
		{
			name:     "empty nested object kept as text",
			line:     `{"labels":{},"bytes":1}`,
			expected: core.Record{"labels": "{}", "bytes": int64(1)},
		},
		{
			name:     "integer beyond int64 becomes float",
			line:     `{"bytes":99999999999999999999}`,
			expected: core.Record{"bytes": 1e20},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			record, err := parser.Parse(tt.line)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, record)
		})
	}
}

func TestJSONParser_Errors(t *testing.T) {
	parser := NewJSONParser()

	for _, line := range []string{
		`[1,2]`, `"tcp"`, `42`, `null`, `{"proto":`, `not json`,
		`{"bytes":1e400}`,
		`{"ratio":-1e999}`,
		`{"src.ip":"10.0.0.1","src":{"ip":"10.0.0.2"}}`,
		`{"src":{"ip":"10.0.0.2"},"src.ip":"10.0.0.1"}`,
		`{"proto":"tcp","proto":"udp"}`,
	} {
		t.Run(line, func(t *testing.T) {
			record, err := parser.Parse(line)
			assert.Nil(t, record)

			var parseErr *core.ParseError
			require.True(t, errors.As(err, &parseErr))
			assert.Equal(t, line, parseErr.Line)
		})
	}
}

func TestDelimitedParser_Parse(t *testing.T) {
	parser, err := NewDelimitedParser(WithColumns([]string{"ip_src", "bytes", "ratio", "sampled", "tag"}))
	require.NoError(t, err)

	record, err := parser.Parse("10.0.0.1,1500,0.25,true,")
	require.NoError(t, err)
	assert.Equal(t, core.Record{
		"ip_src":  "10.0.0.1",
		"bytes":   int64(1500),
		"ratio":   0.25,
		"sampled": true,
		"tag":     nil,
	}, record)

	record, err = parser.Parse(`"a,b",NaN,1e3,TRUE,x`)
	require.NoError(t, err)
	assert.Equal(t, "a,b", record["ip_src"])
	assert.Equal(t, "NaN", record["bytes"])
	assert.Equal(t, float64(1000), record["ratio"])
	assert.Equal(t, true, record["sampled"])
	assert.Equal(t, "x", record["tag"])
}

func TestDelimitedParser_FieldCountMismatch(t *testing.T) {
	parser, err := NewDelimitedParser(WithColumns([]string{"a", "b"}))
	require.NoError(t, err)

	_, err = parser.Parse("1,2,3")
	var parseErr *core.ParseError
	require.True(t, errors.As(err, &parseErr))
	assert.Contains(t, parseErr.Error(), "expected 2 fields, got 3")

	// a failed line leaves the parser usable
	record, err := parser.Parse("1,2")
	require.NoError(t, err)
	assert.Len(t, record, 2)
}

func TestDelimitedParser_CustomDelimiter(t *testing.T) {
	parser, err := NewDelimitedParser(WithDelimiter(';'), WithColumns([]string{"proto", "bytes"}))
	require.NoError(t, err)

	record, err := parser.Parse("udp; 53")
	require.NoError(t, err)
	assert.Equal(t, core.Record{"proto": "udp", "bytes": int64(53)}, record)
}

func TestNewDelimitedParser_InvalidColumns(t *testing.T) {
	tests := []struct {
		name    string
		columns []string
		path    string
	}{
		{name: "no columns", columns: nil, path: "input.columns"},
		{name: "empty name", columns: []string{"a", " "}, path: "input.columns[1]"},
		{name: "duplicate", columns: []string{"a", "b", "a"}, path: "input.columns[2]"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewDelimitedParser(WithColumns(tt.columns))
			var cfgErr *core.ConfigError
			require.True(t, errors.As(err, &cfgErr))
			assert.Equal(t, tt.path, cfgErr.Path)
		})
	}
}

func TestParseHeader(t *testing.T) {
	columns, err := ParseHeader("SRC_IP, DST_IP ,PROTOCOL,BYTES", ',')
	require.NoError(t, err)
	assert.Equal(t, []string{"SRC_IP", "DST_IP", "PROTOCOL", "BYTES"}, columns)
}

func TestNewParser(t *testing.T) {
	p, err := NewParser("JSON")
	require.NoError(t, err)
	assert.IsType(t, &JSONParser{}, p)

	p, err = NewParser("csv", WithColumns([]string{"a"}))
	require.NoError(t, err)
	assert.IsType(t, &DelimitedParser{}, p)

	_, err = NewParser("xml")
	var cfgErr *core.ConfigError
	require.True(t, errors.As(err, &cfgErr))
	assert.Equal(t, "input.format", cfgErr.Path)

	p, err = NewParser("delimited")
	assert.Nil(t, p)
	require.Error(t, err)
}

func TestLineReader_ReadLine(t *testing.T) {
	reader := NewLineReader(strings.NewReader("first\r\n\nthird"), nil)
	ctx := context.Background()

	var lines []string
	for {
		line, err := reader.ReadLine(ctx)
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		lines = append(lines, line)
	}

	assert.Equal(t, []string{"first", "", "third"}, lines)
	assert.Equal(t, int64(3), reader.Stats().LinesRead)
	assert.NoError(t, reader.Close())
}

func TestLineReader_Cancelled(t *testing.T) {
	reader := NewLineReader(strings.NewReader("a\nb\n"), nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := reader.ReadLine(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestLineReader_LineTooLong(t *testing.T) {
	reader := NewLineReader(strings.NewReader(strings.Repeat("x", 64)+"\n"), nil,
		WithLineBufferSize(16), WithMaxLineSize(32))

	_, err := reader.ReadLine(context.Background())
	var lrErr *LineReaderError
	require.True(t, errors.As(err, &lrErr))
	assert.Equal(t, "scan", lrErr.Op)
}

func TestOpenLineReader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "flows.json")
	require.NoError(t, os.WriteFile(path, []byte("{\"a\":1}\n"), 0o600))

	reader, err := OpenLineReader(path)
	require.NoError(t, err)
	line, err := reader.ReadLine(context.Background())
	require.NoError(t, err)
	assert.Equal(t, `{"a":1}`, line)
	require.NoError(t, reader.Close())

	_, err = OpenLineReader(filepath.Join(t.TempDir(), "missing.json"))
	var lrErr *LineReaderError
	require.True(t, errors.As(err, &lrErr))
	assert.Equal(t, "open", lrErr.Op)
}

// fakeS3 serves objects from memory.
type fakeS3 struct {
	objects map[string]string
	gets    []string
}

func (f *fakeS3) ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	out := &s3.ListObjectsV2Output{}
	for key := range f.objects {
		if strings.HasPrefix(key, aws.ToString(in.Prefix)) {
			out.Contents = append(out.Contents, types.Object{Key: aws.String(key)})
		}
	}
	return out, nil
}

func (f *fakeS3) GetObject(ctx context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	key := aws.ToString(in.Key)
	body, ok := f.objects[key]
	if !ok {
		return nil, errors.New("NoSuchKey")
	}
	f.gets = append(f.gets, key)
	return &s3.GetObjectOutput{Body: io.NopCloser(strings.NewReader(body))}, nil
}

func TestS3LineReader_ReadsObjectsInKeyOrder(t *testing.T) {
	client := &fakeS3{objects: map[string]string{
		"flows/2025/02.json": "c\n",
		"flows/2025/01.json": "a\nb\n",
		"flows/2025/01.txt":  "skipped\n",
		"other/00.json":      "skipped\n",
	}}

	reader, err := newS3LineReader(context.Background(), client, S3ReaderOptions{
		Bucket: "flows", Prefix: "flows/", Suffix: ".json", MaxKeys: 10,
	})
	require.NoError(t, err)

	var lines []string
	for {
		line, err := reader.ReadLine(context.Background())
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		lines = append(lines, line)
	}
	require.NoError(t, reader.Close())

	assert.Equal(t, []string{"a", "b", "c"}, lines)
	assert.Equal(t, []string{"flows/2025/01.json", "flows/2025/02.json"}, client.gets)

	stats := reader.Stats()
	assert.Equal(t, int64(2), stats.ObjectsListed)
	assert.Equal(t, int64(2), stats.ObjectsRead)
	assert.Equal(t, int64(3), stats.LinesRead)
	assert.Len(t, stats.ProcessedFiles, 2)
}

func TestS3LineReader_MissingObject(t *testing.T) {
	reader, err := newS3LineReader(context.Background(), &fakeS3{}, S3ReaderOptions{Bucket: "flows", Key: "gone.json"})
	require.NoError(t, err)

	_, err = reader.ReadLine(context.Background())
	var s3Err *S3ReaderError
	require.True(t, errors.As(err, &s3Err))
	assert.Equal(t, "get_object", s3Err.Op)
}

func TestNewS3LineReader_RequiresBucket(t *testing.T) {
	_, err := NewS3LineReader(context.Background())
	var s3Err *S3ReaderError
	require.True(t, errors.As(err, &s3Err))
	assert.Equal(t, "validate_options", s3Err.Op)
}
