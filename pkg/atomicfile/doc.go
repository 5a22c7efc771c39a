/*
Package atomicfile writes files with crash-safe replace semantics.

Every durable write in the engine follows the same inviolate sequence:

	open <target>.tmp -> stream writes -> flush -> fsync -> close ->
	rename to <target> -> fsync directory

A crash at any point before the rename leaves the target untouched and at
worst a stray .tmp file; a crash after the rename leaves the new content
fully in place. Boot recovery sweeps stray .tmp files with RemoveStrayTmp.

Writer is the streaming form used by staging; WriteFile and WriteJSON are
the convenience forms for small payloads like the installed-version
record.

Directory fsync is attempted after every rename and tolerated to fail:
flash filesystems on constrained devices do not all support it, and the
rename itself is the atomicity boundary.
*/
package atomicfile
