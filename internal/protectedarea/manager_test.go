package protectedarea

import "testing"

func TestScanContentRoundTrip(t *testing.T) {
	text := "// START PROTECTED REGION k\n" +
		"user-kept\n" +
		"more lines\n" +
		"// END PROTECTED REGION k\n"

	m := New()
	m.ScanContent(text)

	content, ok := m.Content("k")
	if !ok {
		t.Fatalf("expected region k to be found")
	}
	if want := "user-kept\nmore lines"; content != want {
		t.Errorf("Content(k) = %q, want %q", content, want)
	}
}

func TestScanContentIgnoresOrphanEnd(t *testing.T) {
	m := New()
	m.ScanContent("// END PROTECTED REGION orphan\nbody\n")
	if _, ok := m.Content("orphan"); ok {
		t.Errorf("expected no region for an orphan end marker")
	}
}

func TestScanContentAbandonsReopenedRegion(t *testing.T) {
	text := "// START PROTECTED REGION a\n" +
		"stale\n" +
		"// START PROTECTED REGION a\n" +
		"fresh\n" +
		"// END PROTECTED REGION a\n"
	m := New()
	m.ScanContent(text)
	content, ok := m.Content("a")
	if !ok {
		t.Fatalf("expected region a to be found")
	}
	if content != "fresh" {
		t.Errorf("Content(a) = %q, want %q", content, "fresh")
	}
}

func TestScanContentMismatchedIDKeepsRegionOpen(t *testing.T) {
	text := "START PROTECTED REGION a\n" +
		"line1\n" +
		"END PROTECTED REGION b\n" +
		"line2\n" +
		"END PROTECTED REGION a\n"
	m := New()
	m.ScanContent(text)
	content, ok := m.Content("a")
	if !ok {
		t.Fatalf("expected region a to be found")
	}
	want := "line1\nline2"
	if content != want {
		t.Errorf("Content(a) = %q, want %q", content, want)
	}
}

func TestScanFileMissingIsNotError(t *testing.T) {
	m := New()
	if err := m.ScanFile("/nonexistent/path/does-not-exist.txt"); err != nil {
		t.Errorf("expected no error scanning a missing file, got %v", err)
	}
}

func TestGenerateMarkers(t *testing.T) {
	start, end := GenerateMarkers("k", "//")
	if start != "// START PROTECTED REGION k" {
		t.Errorf("start = %q", start)
	}
	if end != "// END PROTECTED REGION k" {
		t.Errorf("end = %q", end)
	}

	start, end = GenerateMarkers("k", "")
	if start != "START PROTECTED REGION k" || end != "END PROTECTED REGION k" {
		t.Errorf("unprefixed markers = %q / %q", start, end)
	}
}

func TestGenerateMarkersPrefixedWithDistinctPrefixes(t *testing.T) {
	start, end := GenerateMarkersPrefixed("k", "// ", "# ")
	if start != "//  START PROTECTED REGION k" {
		t.Errorf("start = %q", start)
	}
	if end != "#  END PROTECTED REGION k" {
		t.Errorf("end = %q", end)
	}
}

func TestSetAndRemoveAndClear(t *testing.T) {
	m := New()
	m.Set("x", "body", "", "")
	if _, ok := m.Content("x"); !ok {
		t.Fatalf("expected x to be set")
	}
	m.Remove("x")
	if _, ok := m.Content("x"); ok {
		t.Errorf("expected x to be removed")
	}

	m.Set("y", "body", "", "")
	m.Clear()
	if len(m.All()) != 0 {
		t.Errorf("expected Clear to empty the manager")
	}
}
