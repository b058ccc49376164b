package app

import (
	"net/http"
	"reflect"
	"testing"
)

func TestNewHighThroughputHTTPClient_Config(t *testing.T) {
	c := newHighThroughputHTTPClient(true)
	if c.Timeout == 0 {
		t.Fatalf("expected non-zero timeout")
	}
	tr, ok := c.Transport.(*http.Transport)
	if !ok {
		t.Fatalf("expected http.Transport")
	}
	if tr.MaxIdleConnsPerHost < 100 {
		t.Fatalf("expected large MaxIdleConnsPerHost, got %d", tr.MaxIdleConnsPerHost)
	}
	if reflect.ValueOf(http.DefaultTransport).Pointer() == reflect.ValueOf(tr).Pointer() {
		t.Fatalf("transport should not be default")
	}
}

func TestNewHighThroughputHTTPClient_SSLVerify(t *testing.T) {
	for _, verify := range []bool{true, false} {
		tr := newHighThroughputHTTPClient(verify).Transport.(*http.Transport)
		skip := tr.TLSClientConfig != nil && tr.TLSClientConfig.InsecureSkipVerify
		if skip == verify {
			t.Fatalf("sslVerify=%v: InsecureSkipVerify=%v", verify, skip)
		}
	}
}
