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

package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Record(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetricsWithRegistry("test_", reg)

	m.RecordLineRead()
	m.RecordLineRead()
	m.RecordEmitted()
	m.RecordError("parse")
	m.RecordFlush("partial", 5, 2, 10*time.Millisecond)
	m.RecordFlush("ok", 5, 0, time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.linesRead))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.recordsEmitted))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.errors.WithLabelValues("parse")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.batchesFlushed.WithLabelValues("partial")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.recordsRejected))

	families, err := reg.Gather()
	require.NoError(t, err)
	names := make([]string, 0, len(families))
	for _, f := range families {
		names = append(names, f.GetName())
	}
	assert.Contains(t, names, "test_flush_duration_seconds")
	assert.Contains(t, names, "test_batch_size")
}
