package transport

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/kimjh/vlanstitch/pkg/classify"
	"github.com/kimjh/vlanstitch/pkg/reporting"
)

func testLogger() *reporting.Logger {
	return reporting.NewLogger(reporting.LoggerConfig{
		Level:  reporting.LogLevelError,
		Format: reporting.LogFormatJSON,
		Output: io.Discard,
	})
}

func serve(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv
}

func TestAllocateV2ReturnsManifest(t *testing.T) {
	srv := serve(t, func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("op"); got != "allocate" {
			t.Errorf("op = %q, want allocate", got)
		}
		w.Write([]byte(`<response>
  <code>0</code>
  <am_type>protogeni</am_type>
  <provider_log>https://provider/log/9</provider_log>
  <value><rspec type="manifest"></rspec></value>
</response>`))
	})

	var amTypes []string
	c := NewProviderClient(ProviderConfig{}, testLogger())
	c.OnAMType = func(url, amType string) { amTypes = append(amTypes, amType) }

	manifest, logURL, err := c.Allocate(context.Background(), srv.URL, 2, "urn:slice:s", []byte("<req/>"))
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	if !strings.Contains(string(manifest), `type="manifest"`) {
		t.Errorf("manifest = %q", manifest)
	}
	if logURL != "https://provider/log/9" {
		t.Errorf("logURL = %q", logURL)
	}
	if len(amTypes) != 1 || amTypes[0] != "protogeni" {
		t.Errorf("amTypes = %v, want [protogeni]", amTypes)
	}
}

func TestAllocateV3ExtractsGeniRspec(t *testing.T) {
	srv := serve(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<response>
  <code>0</code>
  <value>
    <entry>
      <geni_rspec><rspec type="manifest"></rspec></geni_rspec>
    </entry>
  </value>
</response>`))
	})

	c := NewProviderClient(ProviderConfig{}, testLogger())
	manifest, _, err := c.Allocate(context.Background(), srv.URL, 3, "urn:slice:s", []byte("<req/>"))
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	if !strings.Contains(string(manifest), `type="manifest"`) {
		t.Errorf("manifest = %q", manifest)
	}
}

func TestAllocateErrorMapsToProviderError(t *testing.T) {
	srv := serve(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<response>
  <code>24</code>
  <am_code>24</am_code>
  <am_type>protogeni</am_type>
  <output>Could not reserve vlan tags</output>
</response>`))
	})

	c := NewProviderClient(ProviderConfig{}, testLogger())
	_, _, err := c.Allocate(context.Background(), srv.URL, 2, "urn:slice:s", []byte("<req/>"))
	perr, ok := err.(*classify.ProviderError)
	if !ok {
		t.Fatalf("error type = %T, want *classify.ProviderError", err)
	}
	if perr.Code != 24 || perr.AMType != "protogeni" {
		t.Errorf("perr = %+v", perr)
	}
	if got := classify.Classify(classify.PG, perr); got != classify.VlanUnavailable {
		t.Errorf("classification = %v, want VlanUnavailable", got)
	}
}

func TestStatusFoldsSlivers(t *testing.T) {
	srv := serve(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<response>
  <code>0</code>
  <value>
    <sliver status="ready" urn="urn:publicid:IDN+dcn+sliver+circuit-7"></sliver>
    <sliver status="failed" urn="urn:publicid:IDN+dcn+sliver+circuit-8"><error>no VLANs available on link X VLAN PCE PCE_CREATE_FAILED</error></sliver>
  </value>
</response>`))
	})

	c := NewProviderClient(ProviderConfig{}, testLogger())
	res, err := c.Status(context.Background(), srv.URL, 2, "urn:slice:s")
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if res.Status != "failed" {
		t.Errorf("status = %q, want failed (a failed sliver wins)", res.Status)
	}
	if !strings.Contains(res.Message, "no VLANs available") {
		t.Errorf("message = %q", res.Message)
	}
	if res.SliverURN != "urn:publicid:IDN+dcn+sliver+circuit-8" {
		t.Errorf("sliverURN = %q", res.SliverURN)
	}
}

func TestDeleteNothingToDeleteIsSuccess(t *testing.T) {
	srv := serve(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<response>
  <code>12</code>
  <output>Nothing to delete for this slice</output>
</response>`))
	})

	c := NewProviderClient(ProviderConfig{}, testLogger())
	if err := c.Delete(context.Background(), srv.URL, 2, "urn:slice:s"); err != nil {
		t.Fatalf("Delete: %v, want success on nothing-to-delete", err)
	}
}

func TestServerErrorIsTransient(t *testing.T) {
	srv := serve(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte("upstream exploded"))
	})

	c := NewProviderClient(ProviderConfig{}, testLogger())
	_, _, err := c.Allocate(context.Background(), srv.URL, 2, "urn:slice:s", []byte("<req/>"))
	perr, ok := err.(*classify.ProviderError)
	if !ok {
		t.Fatalf("error type = %T, want *classify.ProviderError", err)
	}
	if got := classify.Classify(classify.Generic, perr); got != classify.Transient {
		t.Errorf("classification = %v, want Transient", got)
	}
}
