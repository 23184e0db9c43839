package report

// htmlTemplate is the main HTML template for the report
const htmlTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>{{.Name}} - Load Test Report</title>
    <script src="https://cdn.jsdelivr.net/npm/chart.js"></script>
    <style>
        :root {
            --bg-secondary: #f8fafc;
            --bg-card: #ffffff;
            --text-primary: #1e293b;
            --text-secondary: #64748b;
            --border-color: #e2e8f0;
            --accent-primary: #3b82f6;
            --accent-success: #22c55e;
            --accent-warning: #f59e0b;
            --accent-error: #ef4444;
            --shadow: 0 1px 3px rgba(0, 0, 0, 0.1);
        }

        * { margin: 0; padding: 0; box-sizing: border-box; }

        body {
            font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, 'Helvetica Neue', Arial, sans-serif;
            background-color: var(--bg-secondary);
            color: var(--text-primary);
            line-height: 1.6;
        }

        .container { max-width: 1400px; margin: 0 auto; padding: 2rem; }

        .card {
            background: var(--bg-card);
            border-radius: 12px;
            padding: 1.5rem;
            margin-bottom: 1.5rem;
            box-shadow: var(--shadow);
        }

        .header { display: flex; justify-content: space-between; align-items: center; flex-wrap: wrap; gap: 1rem; }
        .header h1 { font-size: 1.75rem; font-weight: 700; }
        .meta { color: var(--text-secondary); font-size: 0.875rem; display: flex; gap: 1.5rem; }

        .status { padding: 0.5rem 1.25rem; border-radius: 9999px; font-weight: 600; color: #fff; }
        .status.pass { background: var(--accent-success); }
        .status.fail { background: var(--accent-error); }

        .summary { display: grid; grid-template-columns: repeat(auto-fit, minmax(180px, 1fr)); gap: 1rem; }
        .metric .label { color: var(--text-secondary); font-size: 0.75rem; text-transform: uppercase; }
        .metric .value { font-size: 1.5rem; font-weight: 700; }
        .unit { font-size: 0.875rem; color: var(--text-secondary); margin-left: 0.25rem; }

        h2 { font-size: 1.25rem; margin-bottom: 1rem; }
        .stage-header { display: flex; justify-content: space-between; align-items: center; margin-bottom: 1rem; }
        .stage-target { color: var(--text-secondary); font-size: 0.875rem; }
        .warning { color: var(--accent-warning); font-size: 0.875rem; margin-top: 0.5rem; }
        .violation { color: var(--accent-error); font-size: 0.875rem; }

        table { width: 100%; border-collapse: collapse; font-size: 0.875rem; margin-top: 1rem; }
        th, td { text-align: left; padding: 0.5rem; border-bottom: 1px solid var(--border-color); }
        th { color: var(--text-secondary); font-weight: 600; }

        .chart-container { position: relative; height: 320px; }

        .footer { text-align: center; color: var(--text-secondary); font-size: 0.75rem; margin-top: 2rem; }
    </style>
</head>
<body>
    <div class="container">
        <div class="card header">
            <div>
                <h1>{{.Name}}</h1>
                <div class="meta">
                    <span>Started {{.Timestamp.Format "2006-01-02 15:04:05"}}</span>
                    <span>Duration {{formatDuration .Duration}}</span>
                    <span>SLA: failure rate &le; {{printf "%.2f" (mul .Thresholds.MaxFailureRate 100)}}%, median &le; {{formatLatency .Thresholds.MaxMedianLatency}}</span>
                </div>
            </div>
            <div class="status {{if .Success}}pass{{else}}fail{{end}}">
                {{if .Success}}PASSED{{else}}FAILED{{end}}
            </div>
        </div>

        {{if .Stages}}
        <div class="card">
            <h2>Stages</h2>
            <div class="chart-container">
                <canvas id="latencyChart"></canvas>
            </div>
        </div>
        {{end}}

        {{range .Stages}}
        <div class="card">
            <div class="stage-header">
                <div>
                    <h2>{{.Spec.Name}}</h2>
                    <span class="stage-target">{{.Spec.Target}} for {{formatDuration .Spec.Duration}}</span>
                </div>
                <div class="status {{if .Passed}}pass{{else}}fail{{end}}">{{if .Passed}}PASS{{else}}FAIL{{end}}</div>
            </div>

            <div class="summary">
                <div class="metric">
                    <div class="label">Requests</div>
                    <div class="value">{{formatNumber .Stats.RequestCount}}</div>
                </div>
                <div class="metric">
                    <div class="label">Throughput</div>
                    <div class="value">{{printf "%.1f" .Stats.Throughput}}<span class="unit">req/s</span></div>
                </div>
                <div class="metric">
                    <div class="label">Failure Rate</div>
                    <div class="value">{{printf "%.2f" (mul .Stats.FailureRate 100)}}<span class="unit">%</span></div>
                </div>
                <div class="metric">
                    <div class="label">Median</div>
                    <div class="value">{{formatLatency .Stats.Latency.P50}}</div>
                </div>
                <div class="metric">
                    <div class="label">P95</div>
                    <div class="value">{{formatLatency .Stats.Latency.P95}}</div>
                </div>
                <div class="metric">
                    <div class="label">Peak Users</div>
                    <div class="value">{{.Stats.PeakUsers}}</div>
                </div>
            </div>

            {{range .Checks}}{{if not .Passed}}
            <p class="violation">{{.Metric}}: {{.Message}}</p>
            {{end}}{{end}}
            {{if .Stats.HasDataCaveat}}
            <p class="warning">{{.Stats.AbandonedUsers}} users abandoned during drain, their in-flight requests are not counted</p>
            {{end}}

            <table>
                <thead>
                    <tr>
                        <th>Category</th>
                        <th>Requests</th>
                        <th>Failures</th>
                        <th>Min</th>
                        <th>Mean</th>
                        <th>P50</th>
                        <th>P95</th>
                        <th>P99</th>
                        <th>Max</th>
                    </tr>
                </thead>
                <tbody>
                    {{range categories .Stats}}
                    <tr>
                        <td>{{.Name}}</td>
                        <td>{{formatNumber .Stats.RequestCount}}</td>
                        <td>{{formatNumber .Stats.FailureCount}}</td>
                        <td>{{formatLatency .Stats.Latency.Min}}</td>
                        <td>{{formatLatency .Stats.Latency.Mean}}</td>
                        <td>{{formatLatency .Stats.Latency.P50}}</td>
                        <td>{{formatLatency .Stats.Latency.P95}}</td>
                        <td>{{formatLatency .Stats.Latency.P99}}</td>
                        <td>{{formatLatency .Stats.Latency.Max}}</td>
                    </tr>
                    {{end}}
                </tbody>
            </table>
        </div>
        {{end}}

        <div class="footer">
            <p>Generated by stampede &bull; {{.EndTime.Format "2006-01-02 15:04:05 MST"}}</p>
        </div>
    </div>

    <script>
        const stageData = {{.StagesJSON}};

        if (stageData.length > 0 && typeof Chart !== 'undefined') {
            new Chart(document.getElementById('latencyChart'), {
                type: 'bar',
                data: {
                    labels: stageData.map(s => s.name),
                    datasets: [
                        { label: 'P50 (ms)', data: stageData.map(s => s.p50), backgroundColor: '#3b82f6', yAxisID: 'latency' },
                        { label: 'P95 (ms)', data: stageData.map(s => s.p95), backgroundColor: '#f59e0b', yAxisID: 'latency' },
                        { label: 'P99 (ms)', data: stageData.map(s => s.p99), backgroundColor: '#ef4444', yAxisID: 'latency' },
                        { label: 'Requests/s', data: stageData.map(s => s.rps), type: 'line', borderColor: '#22c55e', yAxisID: 'rps' }
                    ]
                },
                options: {
                    responsive: true,
                    maintainAspectRatio: false,
                    scales: {
                        latency: { type: 'linear', position: 'left', title: { display: true, text: 'ms' } },
                        rps: { type: 'linear', position: 'right', grid: { drawOnChartArea: false }, title: { display: true, text: 'req/s' } }
                    }
                }
            });
        }
    </script>
</body>
</html>
`
