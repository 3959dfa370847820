package walker

import (
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/tutu-network/pfp/internal/domain"
)

func mkTree(t *testing.T, files ...string) string {
	t.Helper()
	root := t.TempDir()
	for _, f := range files {
		path := filepath.Join(root, f)
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			t.Fatalf("MkdirAll() error: %v", err)
		}
		if err := os.WriteFile(path, []byte(f), 0644); err != nil {
			t.Fatalf("WriteFile() error: %v", err)
		}
	}
	return root
}

func TestWalk_Recursive(t *testing.T) {
	root := mkTree(t, "a.txt", "sub/b.txt", "sub/deeper/c.md")

	files, err := New(nil).Walk(root)
	if err != nil {
		t.Fatalf("Walk() error: %v", err)
	}

	want := []string{
		filepath.Join(root, "a.txt"),
		filepath.Join(root, "sub", "b.txt"),
		filepath.Join(root, "sub", "deeper", "c.md"),
	}
	if len(files) != len(want) {
		t.Fatalf("Walk() = %v, want %v", files, want)
	}
	for i := range want {
		if files[i] != want[i] {
			t.Errorf("files[%d] = %s, want %s", i, files[i], want[i])
		}
	}
}

func TestWalk_EmptyDir(t *testing.T) {
	files, err := New(nil).Walk(t.TempDir())
	if err != nil {
		t.Fatalf("Walk() error: %v", err)
	}
	if len(files) != 0 {
		t.Errorf("Walk(empty) = %v, want none", files)
	}
}

func TestWalk_MissingRoot(t *testing.T) {
	_, err := New(nil).Walk(filepath.Join(t.TempDir(), "nope"))
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("Walk(missing) = %v, want ErrNotExist", err)
	}
}

func TestWalk_RootIsFile(t *testing.T) {
	root := mkTree(t, "a.txt")
	_, err := New(nil).Walk(filepath.Join(root, "a.txt"))
	if !errors.Is(err, domain.ErrNotDirectory) {
		t.Errorf("Walk(file) = %v, want ErrNotDirectory", err)
	}
}

func TestWalk_Filters(t *testing.T) {
	root := mkTree(t, "a.txt", "b.md", ".hidden/c.txt", ".d.txt")

	w := New(nil)
	w.Extensions = []string{".TXT"}
	w.SkipHidden = true

	files, err := w.Walk(root)
	if err != nil {
		t.Fatalf("Walk() error: %v", err)
	}
	if len(files) != 1 || files[0] != filepath.Join(root, "a.txt") {
		t.Errorf("Walk() = %v, want only a.txt", files)
	}
}

func TestWalk_UnreadableSubdirSkipped(t *testing.T) {
	if runtime.GOOS == "windows" || os.Geteuid() == 0 {
		t.Skip("permission bits not enforced")
	}
	root := mkTree(t, "a.txt", "locked/b.txt", "z/c.txt")
	locked := filepath.Join(root, "locked")
	if err := os.Chmod(locked, 0); err != nil {
		t.Fatalf("Chmod() error: %v", err)
	}
	t.Cleanup(func() { os.Chmod(locked, 0755) })

	files, err := New(nil).Walk(root)
	if err != nil {
		t.Fatalf("Walk() error: %v", err)
	}
	if len(files) != 2 {
		t.Errorf("Walk() = %v, want a.txt and z/c.txt", files)
	}
}

func TestWalk_FollowsFileSymlinks(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("symlinks need privileges on windows")
	}
	target := mkTree(t, "real.txt", "dir/inner.txt")
	root := mkTree(t, "a.txt")

	link := filepath.Join(root, "link.txt")
	if err := os.Symlink(filepath.Join(target, "real.txt"), link); err != nil {
		t.Fatalf("Symlink() error: %v", err)
	}
	if err := os.Symlink(filepath.Join(target, "dir"), filepath.Join(root, "linkdir")); err != nil {
		t.Fatalf("Symlink() error: %v", err)
	}
	if err := os.Symlink(filepath.Join(target, "missing.txt"), filepath.Join(root, "broken.txt")); err != nil {
		t.Fatalf("Symlink() error: %v", err)
	}

	files, err := New(nil).Walk(root)
	if err != nil {
		t.Fatalf("Walk() error: %v", err)
	}

	want := []string{filepath.Join(root, "a.txt"), link}
	if len(files) != len(want) {
		t.Fatalf("Walk() = %v, want %v", files, want)
	}
	for i := range want {
		if files[i] != want[i] {
			t.Errorf("files[%d] = %s, want %s", i, files[i], want[i])
		}
	}
}
