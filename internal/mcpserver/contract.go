package mcpserver

// StateModel describes how catalog items move between states. It is served
// as a resource so clients can read it before toggling items.
const StateModel = `# cloudshelf item states

Every catalog item is in exactly one state:

| state            | meaning                                              |
|------------------|------------------------------------------------------|
| ` + "`unlinked`" + `       | no launcher shortcut exists                          |
| ` + "`linked`" + `         | a managed shortcut exists                            |
| ` + "`pending_add`" + `    | unlinked, queued for creation on the next apply      |
| ` + "`pending_remove`" + ` | linked, queued for removal on the next apply         |

## Tools

1. ` + "`refresh_catalog`" + ` fetches the current cloud catalog. Run it first.
2. ` + "`list_items`" + ` / ` + "`search_catalog`" + ` find items by state or title.
3. ` + "`toggle_item`" + ` swaps unlinked with pending_add and linked with pending_remove.
   Toggling twice undoes the change.
4. ` + "`apply_changes`" + ` writes all pending changes at once. Linked items are
   refreshed in the same batch.
5. ` + "`set_artwork`" + ` replaces the cover, banner, hero, logo or icon image of a
   linked item. PNG and JPEG are accepted, from an http(s) URL or a base64
   data URI.

## Rules

- Only shortcuts tagged by cloudshelf are ever changed or removed.
- The launcher should be closed before apply_changes; it rewrites the
  shortcut file on exit.
- Toggles are remembered across restarts until applied.
`
