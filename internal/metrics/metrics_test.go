package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNewMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetricsWithRegistry(reg)

	if m == nil {
		t.Fatal("NewMetricsWithRegistry returned nil")
	}
	if m.EncryptTotal == nil {
		t.Error("EncryptTotal metric is nil")
	}
	if m.DecryptDuration == nil {
		t.Error("DecryptDuration metric is nil")
	}
	if m.BlindSearchAttempts == nil {
		t.Error("BlindSearchAttempts metric is nil")
	}
}

func TestRecordEncrypt(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetricsWithRegistry(reg)

	m.RecordEncrypt("advanced", 0.05, 4096)
	m.RecordEncrypt("advanced", 0.1, 2048)
	m.RecordEncrypt("wide-open", 0.01, 512)

	advanced := testutil.ToFloat64(m.EncryptTotal.WithLabelValues("advanced"))
	if advanced != 2 {
		t.Errorf("EncryptTotal[advanced] = %v, want 2", advanced)
	}

	wideOpen := testutil.ToFloat64(m.EncryptTotal.WithLabelValues("wide-open"))
	if wideOpen != 1 {
		t.Errorf("EncryptTotal[wide-open] = %v, want 1", wideOpen)
	}

	bytesOut := testutil.ToFloat64(m.EncryptBytesOut)
	if bytesOut != 6656 {
		t.Errorf("EncryptBytesOut = %v, want 6656", bytesOut)
	}
}

func TestRecordEncryptError(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetricsWithRegistry(reg)

	m.RecordEncryptError("no_recipients")
	m.RecordEncryptError("no_recipients")
	m.RecordEncryptError("too_many_recipients")

	noRecipients := testutil.ToFloat64(m.EncryptErrors.WithLabelValues("no_recipients"))
	if noRecipients != 2 {
		t.Errorf("EncryptErrors[no_recipients] = %v, want 2", noRecipients)
	}
}

func TestRecordDecrypt(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetricsWithRegistry(reg)

	m.RecordDecrypt(0.2, 4096)
	m.RecordDecrypt(0.1, 1024)

	total := testutil.ToFloat64(m.DecryptTotal)
	if total != 2 {
		t.Errorf("DecryptTotal = %v, want 2", total)
	}

	bytesIn := testutil.ToFloat64(m.DecryptBytesIn)
	if bytesIn != 5120 {
		t.Errorf("DecryptBytesIn = %v, want 5120", bytesIn)
	}
}

func TestRecordDecryptError(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetricsWithRegistry(reg)

	m.RecordDecryptError("auth_fail")
	m.RecordDecryptError("auth_fail")
	m.RecordDecryptError("format_error")

	authFail := testutil.ToFloat64(m.DecryptErrors.WithLabelValues("auth_fail"))
	if authFail != 2 {
		t.Errorf("DecryptErrors[auth_fail] = %v, want 2", authFail)
	}

	formatError := testutil.ToFloat64(m.DecryptErrors.WithLabelValues("format_error"))
	if formatError != 1 {
		t.Errorf("DecryptErrors[format_error] = %v, want 1", formatError)
	}
}

func TestRecordBlindSearchAttempts(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetricsWithRegistry(reg)

	m.RecordBlindSearchAttempts(37)
	m.RecordBlindSearchAttempts(5)

	count := testutil.CollectAndCount(m.BlindSearchAttempts)
	if count != 1 {
		t.Errorf("CollectAndCount(BlindSearchAttempts) = %d, want 1", count)
	}
}

func TestRecordSignAndVerify(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetricsWithRegistry(reg)

	m.RecordSign()
	m.RecordSign()
	m.RecordVerify("ok")
	m.RecordVerify("failed")
	m.RecordVerify("ok")

	signs := testutil.ToFloat64(m.SignTotal)
	if signs != 2 {
		t.Errorf("SignTotal = %v, want 2", signs)
	}

	ok := testutil.ToFloat64(m.VerifyTotal.WithLabelValues("ok"))
	if ok != 2 {
		t.Errorf("VerifyTotal[ok] = %v, want 2", ok)
	}

	failed := testutil.ToFloat64(m.VerifyTotal.WithLabelValues("failed"))
	if failed != 1 {
		t.Errorf("VerifyTotal[failed] = %v, want 1", failed)
	}
}

func TestDefaultMetrics(t *testing.T) {
	m1 := Default()
	m2 := Default()

	if m1 != m2 {
		t.Error("Default() should return same instance")
	}
	if m1 == nil {
		t.Error("Default() returned nil")
	}
}
