package editor

import "strings"

const InvalidSettings = `-- INVALID SETTINGS ---------------------------------------------------

The "on_save" field in your settings is invalid.

It must be true, false, or a table of substrings to match against the
path of the file being saved:

    [on_save]
    including = ["src/"]
    excluding = ["src/Generated/"]

-----------------------------------------------------------------------
`

const BadAbsolutePath = `-- INVALID SETTINGS ---------------------------------------------------

The "absolute_path" field in your settings is invalid.

I need it to be an absolute path to a file that I am allowed to
execute.

Is the path correct? Do you need to run "chmod +x" on the file?

-----------------------------------------------------------------------
`

// CannotFind renders the diagnostic for a failed lookup, listing the PATH directories which were searched.
func CannotFind(searched []string) string {
	var sb strings.Builder

	sb.WriteString(`-- ELM-FORMAT NOT FOUND -----------------------------------------------

I tried run elm-format, but I could not find it on your computer.

I looked in node_modules/.bin next to the file and in its parent
directories, in node_modules/elm-format/bin of the active project, and
on your PATH. Set "absolute_path" in your settings to point me at it
directly.

-----------------------------------------------------------------------

NOTE: Your PATH variable led me to check in the following directories:

    `)
	sb.WriteString(strings.Join(searched, "\n    "))
	sb.WriteString(`

But I could not find ` + "`elm-format`" + ` in any of them.
`)

	return sb.String()
}
