package procfile

import (
	"os"
	"path/filepath"
	"testing"
)

func writeProcfile(t *testing.T, dir, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, FileName), []byte(content), 0644); err != nil {
		t.Fatalf("writing procfile: %v", err)
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	writeProcfile(t, dir, `project: shop
processes:
  - name: web
    command: npm run dev
  - name: api
    command: go run ./cmd/api
    cwd: backend
`)

	f, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if f == nil {
		t.Fatal("Load returned nil file")
	}
	if f.Project != "shop" {
		t.Errorf("Project = %q, want %q", f.Project, "shop")
	}
	if len(f.Processes) != 2 {
		t.Fatalf("got %d processes, want 2", len(f.Processes))
	}
	if f.Dir != dir {
		t.Errorf("Dir = %q, want %q", f.Dir, dir)
	}
}

func TestLoadMissingFile(t *testing.T) {
	f, err := Load(t.TempDir())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if f != nil {
		t.Errorf("got %+v, want nil for missing file", f)
	}
}

func TestLoadRejectsUnnamedProcess(t *testing.T) {
	dir := t.TempDir()
	writeProcfile(t, dir, `processes:
  - command: npm run dev
`)

	if _, err := Load(dir); err == nil {
		t.Error("expected error for process without a name")
	}
}

func TestLoadRejectsMissingCommand(t *testing.T) {
	dir := t.TempDir()
	writeProcfile(t, dir, `processes:
  - name: web
`)

	if _, err := Load(dir); err == nil {
		t.Error("expected error for process without a command")
	}
}

func TestLoadRejectsDuplicateNames(t *testing.T) {
	dir := t.TempDir()
	writeProcfile(t, dir, `processes:
  - name: web
    command: npm run dev
  - name: web
    command: npm start
`)

	if _, err := Load(dir); err == nil {
		t.Error("expected error for duplicate process names")
	}
}

func TestLoadRejectsInvalidYAML(t *testing.T) {
	dir := t.TempDir()
	writeProcfile(t, dir, "processes: [broken")

	if _, err := Load(dir); err == nil {
		t.Error("expected error for invalid yaml")
	}
}

func TestFindResolvesCwd(t *testing.T) {
	dir := t.TempDir()
	writeProcfile(t, dir, `processes:
  - name: web
    command: npm run dev
  - name: api
    command: go run ./cmd/api
    cwd: backend
  - name: worker
    command: ./worker
    cwd: /srv/worker
`)

	f, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	web, ok := f.Find("web")
	if !ok {
		t.Fatal("Find(web) not found")
	}
	if web.Cwd != dir {
		t.Errorf("web cwd = %q, want file dir %q", web.Cwd, dir)
	}

	api, ok := f.Find("api")
	if !ok {
		t.Fatal("Find(api) not found")
	}
	if want := filepath.Join(dir, "backend"); api.Cwd != want {
		t.Errorf("api cwd = %q, want %q", api.Cwd, want)
	}

	worker, ok := f.Find("worker")
	if !ok {
		t.Fatal("Find(worker) not found")
	}
	if worker.Cwd != "/srv/worker" {
		t.Errorf("worker cwd = %q, want absolute path kept", worker.Cwd)
	}

	if _, ok := f.Find("nope"); ok {
		t.Error("Find(nope) = true, want false")
	}
}

func TestNames(t *testing.T) {
	dir := t.TempDir()
	writeProcfile(t, dir, `processes:
  - name: web
    command: npm run dev
  - name: api
    command: go run ./cmd/api
`)

	f, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	names := f.Names()
	if len(names) != 2 || names[0] != "web" || names[1] != "api" {
		t.Errorf("Names() = %v, want [web api]", names)
	}
}
