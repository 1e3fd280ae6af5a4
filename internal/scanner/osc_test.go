package scanner

import "testing"

func oscSeq(body string, bel bool) []byte {
	seq := []byte{escByte, oscIntroducer}
	seq = append(seq, []byte(body)...)
	if bel {
		seq = append(seq, belByte)
	} else {
		seq = append(seq, escByte, stBackslash)
	}
	return seq
}

func TestParseOSC7URISimplePath(t *testing.T) {
	path, ok := ParseOSC7URI("file://hostname/home/user/project")
	if !ok || path != "/home/user/project" {
		t.Fatalf("got (%q, %v)", path, ok)
	}
}

func TestParseOSC7URIPercentDecoding(t *testing.T) {
	path, ok := ParseOSC7URI("file://host/home/user/my%20project")
	if !ok || path != "/home/user/my project" {
		t.Fatalf("got (%q, %v)", path, ok)
	}
}

func TestParseOSC7URIMalformedPercent(t *testing.T) {
	path, ok := ParseOSC7URI("file://host/home/%zzbad")
	if !ok || path != "/home/%zzbad" {
		t.Fatalf("got (%q, %v)", path, ok)
	}
}

func TestParseOSC7URINoFileScheme(t *testing.T) {
	if _, ok := ParseOSC7URI("http://host/path"); ok {
		t.Fatal("expected rejection of non-file scheme")
	}
}

func TestParseOSC7URINoPath(t *testing.T) {
	if _, ok := ParseOSC7URI("file://hostonly"); ok {
		t.Fatal("expected rejection when no path component present")
	}
}

func TestScanOSC7BelTerminated(t *testing.T) {
	buf := oscSeq("7;file://host/tmp/work", true)
	events := ScanOSC7(buf)
	if len(events) != 1 || events[0].Kind != KindCwdChanged || events[0].CwdPath != "/tmp/work" {
		t.Fatalf("events = %+v", events)
	}
}

func TestScanOSC7StTerminated(t *testing.T) {
	buf := oscSeq("7;file://host/tmp/work", false)
	events := ScanOSC7(buf)
	if len(events) != 1 || events[0].CwdPath != "/tmp/work" {
		t.Fatalf("events = %+v", events)
	}
}

func TestScanOSC7IncompleteSequenceDropped(t *testing.T) {
	buf := []byte{escByte, oscIntroducer, '7', ';'}
	buf = append(buf, []byte("file://host/tmp/work")...)
	events := ScanOSC7(buf)
	if len(events) != 0 {
		t.Fatalf("expected no events for unterminated sequence, got %+v", events)
	}
}

func TestScanOSC7MultipleInOneBuffer(t *testing.T) {
	var buf []byte
	buf = append(buf, oscSeq("7;file://host/a", true)...)
	buf = append(buf, []byte("some output\n")...)
	buf = append(buf, oscSeq("7;file://host/b", true)...)
	events := ScanOSC7(buf)
	if len(events) != 2 || events[0].CwdPath != "/a" || events[1].CwdPath != "/b" {
		t.Fatalf("events = %+v", events)
	}
}

func TestScanOSC7IgnoresUnrelatedOSC(t *testing.T) {
	buf := oscSeq("0;window title", true)
	events := ScanOSC7(buf)
	if len(events) != 0 {
		t.Fatalf("expected no events, got %+v", events)
	}
}

func TestScanOSC133PromptStart(t *testing.T) {
	events := ScanOSC133(oscSeq("133;A", true))
	if len(events) != 1 || events[0].Mark != ZonePrompt || events[0].ExitCode != nil {
		t.Fatalf("events = %+v", events)
	}
}

func TestScanOSC133InputStart(t *testing.T) {
	events := ScanOSC133(oscSeq("133;B", true))
	if len(events) != 1 || events[0].Mark != ZoneInput {
		t.Fatalf("events = %+v", events)
	}
}

func TestScanOSC133OutputStart(t *testing.T) {
	events := ScanOSC133(oscSeq("133;C", true))
	if len(events) != 1 || events[0].Mark != ZoneOutput || events[0].ExitCode != nil {
		t.Fatalf("events = %+v", events)
	}
}

func TestScanOSC133CommandFinishedNoExitCode(t *testing.T) {
	events := ScanOSC133(oscSeq("133;D", true))
	if len(events) != 1 || events[0].ExitCode != nil {
		t.Fatalf("events = %+v", events)
	}
}

func TestScanOSC133CommandFinishedWithExitCode(t *testing.T) {
	events := ScanOSC133(oscSeq("133;D;0", true))
	if len(events) != 1 || events[0].ExitCode == nil || *events[0].ExitCode != 0 {
		t.Fatalf("events = %+v", events)
	}
}

func TestScanOSC133CommandFinishedWithNonzeroExitCode(t *testing.T) {
	events := ScanOSC133(oscSeq("133;D;127", true))
	if len(events) != 1 || events[0].ExitCode == nil || *events[0].ExitCode != 127 {
		t.Fatalf("events = %+v", events)
	}
}

func TestScanOSC133UnrecognizedMarkerIgnored(t *testing.T) {
	events := ScanOSC133(oscSeq("133;Z", true))
	if len(events) != 0 {
		t.Fatalf("events = %+v", events)
	}
}

func TestScanOSC133FullPromptCycle(t *testing.T) {
	var buf []byte
	buf = append(buf, oscSeq("133;A", true)...)
	buf = append(buf, []byte("$ ")...)
	buf = append(buf, oscSeq("133;B", true)...)
	buf = append(buf, []byte("echo hi\n")...)
	buf = append(buf, oscSeq("133;C", true)...)
	buf = append(buf, []byte("hi\n")...)
	buf = append(buf, oscSeq("133;D;0", true)...)
	events := ScanOSC133(buf)
	if len(events) != 4 {
		t.Fatalf("expected 4 events, got %+v", events)
	}
	if events[0].Mark != ZonePrompt || events[1].Mark != ZoneInput || events[2].Mark != ZoneOutput {
		t.Fatalf("events = %+v", events)
	}
	if events[3].ExitCode == nil || *events[3].ExitCode != 0 {
		t.Fatalf("final event = %+v", events[3])
	}
}

func TestScanOSC52WriteCapturesPayload(t *testing.T) {
	events := ScanOSC52(oscSeq("52;c;aGVsbG8=", true))
	if len(events) != 1 || string(events[0].ClipboardData) != "aGVsbG8=" {
		t.Fatalf("events = %+v", events)
	}
}

func TestScanOSC52ReadRequestIgnored(t *testing.T) {
	events := ScanOSC52(oscSeq("52;c;?", true))
	if len(events) != 0 {
		t.Fatalf("expected no event for read request, got %+v", events)
	}
}

func TestScanOSC52StTerminated(t *testing.T) {
	events := ScanOSC52(oscSeq("52;p;YWJj", false))
	if len(events) != 1 || string(events[0].ClipboardData) != "YWJj" {
		t.Fatalf("events = %+v", events)
	}
}

func TestFindStringTerminatorBel(t *testing.T) {
	buf := []byte("payload\x07trailer")
	end, next, ok := findStringTerminator(buf, 0)
	if !ok || end != 7 || next != 8 {
		t.Fatalf("got (%d, %d, %v)", end, next, ok)
	}
}

func TestFindStringTerminatorEscBackslash(t *testing.T) {
	buf := []byte("payload\x1b\\trailer")
	end, next, ok := findStringTerminator(buf, 0)
	if !ok || end != 7 || next != 9 {
		t.Fatalf("got (%d, %d, %v)", end, next, ok)
	}
}

func TestFindStringTerminatorNotFound(t *testing.T) {
	_, _, ok := findStringTerminator([]byte("no terminator here"), 0)
	if ok {
		t.Fatal("expected not found")
	}
}
