package extract

import (
	"archive/tar"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/edenmgr/unidl/pkg/logging"
)

type link struct {
	linkType byte
	oldName  string
	newName  string
}

// TarFile extracts a tar stream, decompressing it first when it carries a known compression header.
// Links are created after all regular files so that hard link targets exist.
func TarFile(ctx context.Context, reader io.Reader, destDir string, opts Options) error {
	logger := logging.GetLogger()
	stream, format, err := decompress(reader)
	if err != nil {
		return err
	}
	logger.Debug().Str("extractor", "tar").Str("compression", format).Msg("Extract")

	var links []*link
	tarReader := tar.NewReader(contextReader{ctx: ctx, reader: stream})
	for {
		header, err := tarReader.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			return fmt.Errorf("error reading tar entry: %w", err)
		}

		target, err := safeJoin(destDir, header.Name)
		if err != nil {
			return err
		}
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return err
		}

		switch header.Typeflag {
		case tar.TypeDir:
			logger.Debug().Str("target", target).Str("perms", fmt.Sprintf("%o", header.Mode)).Msg("Tar: Directory")
			if err := os.MkdirAll(target, cleanFileMode(os.FileMode(header.Mode))); err != nil {
				return err
			}
		case tar.TypeReg:
			logger.Debug().Str("target", target).Str("perms", fmt.Sprintf("%o", header.Mode)).Msg("Tar: File")
			if err := writeFile(target, tarReader, cleanFileMode(os.FileMode(header.Mode)), opts.Overwrite); err != nil {
				return err
			}
		case tar.TypeSymlink, tar.TypeLink:
			logger.Debug().Str("link_type", string(header.Typeflag)).
				Str("old_name", header.Linkname).
				Str("new_name", target).
				Msg("Tar: (Defer) Link")
			links = append(links, &link{linkType: header.Typeflag, oldName: header.Linkname, newName: target})
		default:
			return fmt.Errorf("unsupported file type for %s, typeflag %s", header.Name, string(header.Typeflag))
		}
	}

	if err := createLinks(links, destDir, opts.Overwrite); err != nil {
		return fmt.Errorf("error creating links: %w", err)
	}
	return nil
}

func writeFile(target string, r io.Reader, mode os.FileMode, overwrite bool) error {
	out, err := os.OpenFile(target, openFlags(overwrite), mode)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, r); err != nil {
		out.Close()
		return fmt.Errorf("error writing %s: %w", target, err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("error closing file %s: %w", target, err)
	}
	return nil
}

func createLinks(links []*link, destDir string, overwrite bool) error {
	logger := logging.GetLogger()
	for _, link := range links {
		if err := os.MkdirAll(filepath.Dir(link.newName), 0o755); err != nil {
			return err
		}
		switch link.linkType {
		case tar.TypeLink:
			oldPath, err := safeJoin(destDir, link.oldName)
			if err != nil {
				return err
			}
			logger.Debug().Str("old_path", oldPath).Str("new_path", link.newName).Msg("Tar: creating hard link")
			if err := replaceExisting(link.newName, overwrite); err != nil {
				return err
			}
			if err := os.Link(oldPath, link.newName); err != nil {
				return fmt.Errorf("error creating hard link from %s to %s: %w", oldPath, link.newName, err)
			}
		case tar.TypeSymlink:
			resolved := filepath.Join(filepath.Dir(link.newName), link.oldName)
			if filepath.IsAbs(link.oldName) || !within(destDir, resolved) {
				return fmt.Errorf("%w: symlink %s -> %s", ErrZipSlip, link.newName, link.oldName)
			}
			logger.Debug().Str("old_path", link.oldName).Str("new_path", link.newName).Msg("Tar: creating symlink")
			if err := replaceExisting(link.newName, overwrite); err != nil {
				return err
			}
			if err := os.Symlink(link.oldName, link.newName); err != nil {
				return fmt.Errorf("error creating symlink from %s to %s: %w", link.oldName, link.newName, err)
			}
		default:
			return fmt.Errorf("unsupported link type %s", string(link.linkType))
		}
	}
	return nil
}

// within reports whether path resolves inside destDir.
func within(destDir, path string) bool {
	destAbs, err := filepath.Abs(destDir)
	if err != nil {
		return false
	}
	rel, err := filepath.Rel(destAbs, path)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

func replaceExisting(path string, overwrite bool) error {
	if !overwrite {
		return nil
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("error removing existing file: %w", err)
	}
	return nil
}
