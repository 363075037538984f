package report

import "html/template"

// Section data handed to the HTML template. Numbers are pre-formatted
// so the template stays presentation-only.

type versionRow struct {
	Component string
	Version   string
}

type datasetRow struct {
	Name    string
	Kind    string
	Count   int
	Missing int
	Mean    string
	Std     string
	Min     string
	Median  string
	Max     string
	Levels  string
}

type datasetSection struct {
	Name  string
	NRows int
	Rows  []datasetRow
}

type performanceRow struct {
	Label     string
	Threshold string
	Accuracy  string
	Precision string
	Recall    string
	F1        string
	AUC       string
	LogLoss   string
	Brier     string
	AP        string
}

type plotSection struct {
	Title string
	URI   template.URL
}

type breakdownRow struct {
	Feature      string
	Value        string
	Contribution string
	Cumulative   string
}

type breakdownSection struct {
	Label      string
	Intercept  string
	Prediction string
	Rows       []breakdownRow
}

type shapleyRow struct {
	Feature string
	Value   string
	Mean    string
	Std     string
}

type shapleySection struct {
	Label      string
	Intercept  string
	Prediction string
	Rounds     int
	Rows       []shapleyRow
}

type coefficientRow struct {
	Feature string
	Weight  string
}

type coefficientSection struct {
	Label     string
	Intercept string
	Rows      []coefficientRow
}

type reportData struct {
	Title        string
	RunID        string
	GeneratedAt  string
	GoVersion    string
	Versions     []versionRow
	Datasets     []datasetSection
	Performance  []performanceRow
	Coefficients []coefficientSection
	Plots        []plotSection
	BreakDowns   []breakdownSection
	Shapleys     []shapleySection
}

var reportTemplate = template.Must(template.New("report").Parse(htmlTemplate))

const htmlTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>{{.Title}}</title>
<style>
body { font-family: -apple-system, "Segoe UI", Roboto, sans-serif; margin: 2rem auto; max-width: 70rem; color: #1f2430; }
h1 { border-bottom: 2px solid #3b4a6b; padding-bottom: .3rem; }
h2 { margin-top: 2.2rem; color: #3b4a6b; }
table { border-collapse: collapse; margin: 1rem 0; width: 100%; }
th, td { border: 1px solid #ccd2de; padding: .35rem .6rem; text-align: left; font-size: .9rem; }
th { background: #eef1f7; }
td.num, th.num { text-align: right; font-variant-numeric: tabular-nums; }
.meta { color: #5a6477; font-size: .85rem; }
.plot { margin: 1.2rem 0; }
.plot img { max-width: 100%; border: 1px solid #ccd2de; }
footer { margin-top: 3rem; color: #8a91a0; font-size: .8rem; border-top: 1px solid #ccd2de; padding-top: .5rem; }
</style>
</head>
<body>
<h1>{{.Title}}</h1>
<p class="meta">Run {{.RunID}} &middot; generated {{.GeneratedAt}} &middot; {{.GoVersion}}</p>

{{range .Datasets}}
<h2>Data: {{.Name}}</h2>
<table>
<tr><th>Column</th><th>Kind</th><th class="num">Count</th><th class="num">Missing</th><th class="num">Mean</th><th class="num">Std</th><th class="num">Min</th><th class="num">Median</th><th class="num">Max</th><th>Levels</th></tr>
{{range .Rows}}<tr><td>{{.Name}}</td><td>{{.Kind}}</td><td class="num">{{.Count}}</td><td class="num">{{.Missing}}</td><td class="num">{{.Mean}}</td><td class="num">{{.Std}}</td><td class="num">{{.Min}}</td><td class="num">{{.Median}}</td><td class="num">{{.Max}}</td><td>{{.Levels}}</td></tr>
{{end}}</table>
<p class="meta">{{.NRows}} rows</p>
{{end}}

{{if .Performance}}
<h2>Model performance</h2>
<table>
<tr><th>Model</th><th class="num">Threshold</th><th class="num">Accuracy</th><th class="num">Precision</th><th class="num">Recall</th><th class="num">F1</th><th class="num">AUC</th><th class="num">Log loss</th><th class="num">Brier</th><th class="num">Avg precision</th></tr>
{{range .Performance}}<tr><td>{{.Label}}</td><td class="num">{{.Threshold}}</td><td class="num">{{.Accuracy}}</td><td class="num">{{.Precision}}</td><td class="num">{{.Recall}}</td><td class="num">{{.F1}}</td><td class="num">{{.AUC}}</td><td class="num">{{.LogLoss}}</td><td class="num">{{.Brier}}</td><td class="num">{{.AP}}</td></tr>
{{end}}</table>
{{end}}

{{range .Coefficients}}
<h2>Coefficients: {{.Label}}</h2>
<table>
<tr><th>Term</th><th class="num">Weight</th></tr>
<tr><td>(intercept)</td><td class="num">{{.Intercept}}</td></tr>
{{range .Rows}}<tr><td>{{.Feature}}</td><td class="num">{{.Weight}}</td></tr>
{{end}}</table>
{{end}}

{{range .Plots}}
<div class="plot">
<h2>{{.Title}}</h2>
<img src="{{.URI}}" alt="{{.Title}}">
</div>
{{end}}

{{range .BreakDowns}}
<h2>Break-down: {{.Label}}</h2>
<table>
<tr><th>Feature</th><th class="num">Value</th><th class="num">Contribution</th><th class="num">Cumulative</th></tr>
<tr><td>(intercept)</td><td class="num"></td><td class="num"></td><td class="num">{{.Intercept}}</td></tr>
{{range .Rows}}<tr><td>{{.Feature}}</td><td class="num">{{.Value}}</td><td class="num">{{.Contribution}}</td><td class="num">{{.Cumulative}}</td></tr>
{{end}}<tr><td>(prediction)</td><td class="num"></td><td class="num"></td><td class="num">{{.Prediction}}</td></tr>
</table>
{{end}}

{{range .Shapleys}}
<h2>Shapley values: {{.Label}} ({{.Rounds}} orderings)</h2>
<table>
<tr><th>Feature</th><th class="num">Value</th><th class="num">Mean contribution</th><th class="num">Std</th></tr>
{{range .Rows}}<tr><td>{{.Feature}}</td><td class="num">{{.Value}}</td><td class="num">{{.Mean}}</td><td class="num">{{.Std}}</td></tr>
{{end}}</table>
<p class="meta">intercept {{.Intercept}} &rarr; prediction {{.Prediction}}</p>
{{end}}

<footer>
{{range .Versions}}{{.Component}} {{.Version}} &middot; {{end}}run {{.RunID}}
</footer>
</body>
</html>
`
