package http

import (
	"html/template"
	"net/http"

	"go.uber.org/zap"

	"github.com/kmorozova/bike-demand-service/internal/models"
)

// pageData feeds the prediction form template.
type pageData struct {
	Date        string
	Holiday     bool
	Error       string
	Observation *models.Observation
	Predictions []models.HourlyPrediction
	Total       float64
}

var pageTemplate = template.Must(template.New("page").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>Bike Demand Forecast</title>
<style>
body { font-family: sans-serif; max-width: 720px; margin: 2rem auto; color: #222; }
fieldset { border: 1px solid #ccc; margin-bottom: 1rem; }
label { display: inline-block; min-width: 9rem; }
table { border-collapse: collapse; margin-top: 1rem; }
td, th { border: 1px solid #ccc; padding: 0.25rem 0.75rem; text-align: right; }
.error { color: #a00; font-weight: bold; }
.total { margin-top: 1rem; font-size: 1.2rem; }
</style>
</head>
<body>
<h1>Bike Demand Forecast</h1>
{{if .Error}}<p class="error">{{.Error}}</p>{{end}}
<form method="post" action="/predict">
<fieldset>
<legend>Date</legend>
<p><label for="date">Date</label><input type="date" id="date" name="date" value="{{.Date}}"></p>
<p><label for="holiday">Public holiday</label><input type="checkbox" id="holiday" name="holiday" value="true"{{if .Holiday}} checked{{end}}></p>
</fieldset>
<fieldset>
<legend>Weather overrides (leave blank to use provider data)</legend>
<p><label for="temperature">Temperature (C)</label><input id="temperature" name="temperature"></p>
<p><label for="humidity">Humidity (%)</label><input id="humidity" name="humidity"></p>
<p><label for="windSpeed">Wind speed (m/s)</label><input id="windSpeed" name="windSpeed"></p>
<p><label for="precipitation">Precipitation (mm)</label><input id="precipitation" name="precipitation"></p>
<p><label for="solarRadiation">Solar radiation (MJ/m2)</label><input id="solarRadiation" name="solarRadiation"></p>
<p><label for="visibility">Visibility (10m)</label><input id="visibility" name="visibility"></p>
<p><label for="dewPoint">Dew point (C)</label><input id="dewPoint" name="dewPoint"></p>
</fieldset>
<button type="submit">Predict</button>
</form>
{{if .Observation}}
<h2>Weather for {{.Date}}</h2>
<table>
<tr><th>Temp</th><th>Humidity</th><th>Wind</th><th>Precip</th><th>Solar</th><th>Visibility</th><th>Dew point</th></tr>
<tr>
<td>{{printf "%.1f" .Observation.Temperature}}</td>
<td>{{printf "%.0f" .Observation.Humidity}}</td>
<td>{{printf "%.1f" .Observation.WindSpeed}}</td>
<td>{{printf "%.1f" .Observation.Precipitation}}</td>
<td>{{printf "%.2f" .Observation.SolarRadiation}}</td>
<td>{{printf "%.0f" .Observation.Visibility}}</td>
<td>{{printf "%.1f" .Observation.DewPoint}}</td>
</tr>
</table>
{{end}}
{{if .Predictions}}
<h2>Predicted rentals by hour</h2>
<table>
<tr><th>Hour</th><th>Rentals</th></tr>
{{range .Predictions}}<tr><td>{{.Hour}}</td><td>{{printf "%.0f" .Count}}</td></tr>
{{end}}</table>
<p class="total">Estimated total: <strong>{{printf "%.0f" .Total}}</strong> rentals</p>
{{end}}
</body>
</html>
`))

// renderPage renders the single-page form. Template failures fall back to a
// plain 500 since there is nothing useful to show the user.
func (h *Handler) renderPage(w http.ResponseWriter, status int, data pageData) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := pageTemplate.Execute(w, data); err != nil && h.logger != nil {
		h.logger.Error("template render failed", zap.Error(err))
	}
}
