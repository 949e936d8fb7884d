package api

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/oapi-codegen/runtime"

	"upi-autopay-subscription/internal/domain"
)

// pathString binds a required path parameter declared in openapi.yaml.
func pathString(r *http.Request, name string) (string, error) {
	raw := chi.URLParam(r, name)
	if raw == "" {
		return "", fmt.Errorf("%w: %s is required", domain.ErrInvalidArgument, name)
	}
	var v string
	if err := runtime.BindStyledParameterWithLocation("simple", false, name, runtime.ParamLocationPath, raw, &v); err != nil {
		return "", fmt.Errorf("%w: invalid path parameter %s: %v", domain.ErrInvalidArgument, name, err)
	}
	return v, nil
}

// queryInt binds an optional integer query parameter; absent leaves def.
func queryInt(r *http.Request, name string, def int) (int, error) {
	var v *int
	if err := runtime.BindQueryParameter("form", true, false, name, r.URL.Query(), &v); err != nil {
		return 0, fmt.Errorf("%w: invalid query parameter %s: %v", domain.ErrInvalidArgument, name, err)
	}
	if v == nil {
		return def, nil
	}
	return *v, nil
}
