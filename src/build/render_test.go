package build

import (
	"strings"
	"testing"

	"github.com/sofmeright/dockergen/src/descriptor"
)

type testUnit struct {
	values   map[string]any
	ports    []int
	files    []descriptor.CopyFile
	service  bool
	noBundle bool
}

func finalize(t *testing.T, u testUnit) *descriptor.Descriptor {
	t.Helper()
	a := descriptor.NewAssembler("hello", descriptor.Options{PackageName: "hello"})
	if !u.noBundle {
		a.SetBundle("target/hello.balx")
	}
	if err := a.SetAll(u.values); err != nil {
		t.Fatalf("SetAll: %v", err)
	}
	for _, f := range u.files {
		if err := a.AddCopyFile(f); err != nil {
			t.Fatalf("AddCopyFile: %v", err)
		}
	}
	a.AddPorts(u.ports...)
	if u.service {
		a.MarkService()
	}
	d, err := a.Finalize()
	if err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	return d
}

func TestRender_Basic(t *testing.T) {
	d := finalize(t, testUnit{ports: []int{9090}, service: true})
	got := Render(d)
	want := `# Auto Generated Dockerfile

FROM ballerina/ballerina-runtime:0.990.0
LABEL maintainer="dev@ballerina.io"

COPY hello.balx /home/ballerina
EXPOSE 9090

CMD ballerina run hello.balx
`
	if got != want {
		t.Errorf("Render mismatch\n got:\n%s\nwant:\n%s", got, want)
	}
}

func TestRender_Deterministic(t *testing.T) {
	u := testUnit{
		ports:   []int{8080, 443, 9090},
		service: true,
		values:  map[string]any{descriptor.KeyEnableDebug: true},
		files: []descriptor.CopyFile{
			{Source: "z/data.txt", Target: "/home/ballerina/data.txt"},
			{Source: "conf/app.conf", Target: "/home/ballerina/conf/app.conf", IsConfigFile: true},
			{Source: "a/extra.txt", Target: "/home/ballerina/extra.txt"},
		},
	}
	d := finalize(t, u)
	first := Render(d)
	for i := 0; i < 20; i++ {
		if got := Render(d); got != first {
			t.Fatalf("render %d differs:\n%s\nvs\n%s", i, got, first)
		}
	}

	// Declaration order of copy entries must not leak into the output.
	u.files[0], u.files[2] = u.files[2], u.files[0]
	if got := Render(finalize(t, u)); got != first {
		t.Errorf("output depends on copy declaration order:\n%s\nvs\n%s", got, first)
	}
}

func TestRender_PortOrdering(t *testing.T) {
	d := finalize(t, testUnit{ports: []int{9091, 9090, 9092}, service: true})
	if !strings.Contains(Render(d), "\nEXPOSE 9090 9091 9092\n") {
		t.Errorf("EXPOSE not sorted:\n%s", Render(d))
	}
}

func TestRender_NoExpose(t *testing.T) {
	tests := []struct {
		name string
		u    testUnit
	}{
		{"not a service", testUnit{ports: []int{9090}, service: false}},
		{"no ports", testUnit{service: true}},
		{"neither", testUnit{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if out := Render(finalize(t, tt.u)); strings.Contains(out, "EXPOSE") {
				t.Errorf("unexpected EXPOSE:\n%s", out)
			}
		})
	}
}

func TestRender_Debug(t *testing.T) {
	d := finalize(t, testUnit{
		ports:   []int{9090},
		service: true,
		values:  map[string]any{descriptor.KeyEnableDebug: true, descriptor.KeyDebugPort: 5005},
	})
	out := Render(d)
	if !strings.Contains(out, "EXPOSE 5005 9090") {
		t.Errorf("debug port not exposed:\n%s", out)
	}
	if !strings.Contains(out, "CMD ballerina run --debug 5005 hello.balx") {
		t.Errorf("debug flag missing from CMD:\n%s", out)
	}
}

func TestRender_CopyFilesAndConfig(t *testing.T) {
	d := finalize(t, testUnit{
		values: map[string]any{descriptor.KeyCommandArg: " --offline "},
		files: []descriptor.CopyFile{
			{Source: "conf/app.conf", Target: "/home/ballerina/conf/app.conf", IsConfigFile: true},
			{Source: "data/seed.json", Target: "/home/ballerina/seed.json"},
		},
	})
	out := Render(d)
	for _, want := range []string{
		"COPY app.conf /home/ballerina/conf/app.conf\n",
		"COPY seed.json /home/ballerina/seed.json\n",
		"ENV CONFIG_FILE=/home/ballerina/conf/app.conf\n",
		"CMD ballerina run --offline --config ${CONFIG_FILE} hello.balx\n",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("missing %q in:\n%s", want, out)
		}
	}
	if strings.Index(out, "app.conf /home") > strings.Index(out, "seed.json /home") {
		t.Errorf("copy lines not sorted by target:\n%s", out)
	}
}

func TestCommand_Template(t *testing.T) {
	d := finalize(t, testUnit{
		values: map[string]any{descriptor.KeyCmd: "java -jar ${APP} --conf ${CONFIG_FILE}"},
		files: []descriptor.CopyFile{
			{Source: "conf/app.conf", Target: "/etc/app.conf", IsConfigFile: true},
		},
	})
	if got, want := Command(d), "java -jar hello.balx --conf /etc/app.conf"; got != want {
		t.Errorf("Command = %q, want %q", got, want)
	}
}

func TestRender_RoundTripsThroughParser(t *testing.T) {
	d := finalize(t, testUnit{ports: []int{9092, 9090}, service: true})
	info, err := ReadDockerfile(strings.NewReader(Render(d)))
	if err != nil {
		t.Fatal(err)
	}
	if info.BaseImage() != d.BaseImage {
		t.Errorf("BaseImage = %q, want %q", info.BaseImage(), d.BaseImage)
	}
	if strings.Join(info.Expose, ",") != "9090,9092" {
		t.Errorf("Expose = %v", info.Expose)
	}
	if info.Cmd != Command(d) {
		t.Errorf("Cmd = %q, want %q", info.Cmd, Command(d))
	}
}
