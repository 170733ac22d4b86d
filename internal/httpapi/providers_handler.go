package httpapi

import "net/http"

func (d *Dependencies) handleListProviders(w http.ResponseWriter, r *http.Request) {
	d.respond(w, http.StatusOK, d.Dispatcher.ListProviders())
}

// handleListModels answers 404 for a provider that is unknown or unconfigured.
func (d *Dependencies) handleListModels(w http.ResponseWriter, r *http.Request) {
	models, err := d.Dispatcher.ListModels(r.PathValue("provider"))
	if err != nil {
		writeCompletionError(w, err)
		return
	}
	d.respond(w, http.StatusOK, models)
}

func (d *Dependencies) handleHealth(w http.ResponseWriter, r *http.Request) {
	d.respond(w, http.StatusOK, d.Dispatcher.HealthCheck())
}
